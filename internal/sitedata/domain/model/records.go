package model

import "time"

// Record is implemented by every stored record type.
type Record interface {
	RecordID() string
}

// SocialLink is a labelled outbound link on the profile.
type SocialLink struct {
	Label string `json:"label" bson:"label"`
	URL   string `json:"url" bson:"url"`
}

// Profile is the site owner's singleton record.
type Profile struct {
	ID        string       `json:"id" bson:"_id"`
	Name      string       `json:"name" bson:"name"`
	Title     string       `json:"title" bson:"title"`
	Bio       string       `json:"bio" bson:"bio"`
	Email     string       `json:"email,omitempty" bson:"email,omitempty"`
	Location  string       `json:"location,omitempty" bson:"location,omitempty"`
	AvatarURL string       `json:"avatar_url,omitempty" bson:"avatar_url,omitempty"`
	ResumeURL string       `json:"resume_url,omitempty" bson:"resume_url,omitempty"`
	Socials   []SocialLink `json:"socials" bson:"socials"`
	Skills    []string     `json:"skills" bson:"skills"`
}

// Project is one portfolio entry.
type Project struct {
	ID          string   `json:"id" bson:"_id"`
	Title       string   `json:"title" bson:"title"`
	Summary     string   `json:"summary,omitempty" bson:"summary,omitempty"`
	Description string   `json:"description,omitempty" bson:"description,omitempty"`
	CategoryID  string   `json:"category_id,omitempty" bson:"category_id,omitempty"`
	Tags        []string `json:"tags" bson:"tags"`
	ImageURL    string   `json:"image_url,omitempty" bson:"image_url,omitempty"`
	VideoURL    string   `json:"video_url,omitempty" bson:"video_url,omitempty"`
	LiveURL     string   `json:"live_url,omitempty" bson:"live_url,omitempty"`
	RepoURL     string   `json:"repo_url,omitempty" bson:"repo_url,omitempty"`
	Featured    bool     `json:"featured" bson:"featured"`
	OrderIndex  int      `json:"order_index" bson:"order_index"`
}

// Experience is one entry of the work history.
type Experience struct {
	ID          string   `json:"id" bson:"_id"`
	Company     string   `json:"company" bson:"company"`
	Role        string   `json:"role" bson:"role"`
	Location    string   `json:"location,omitempty" bson:"location,omitempty"`
	StartDate   string   `json:"start_date,omitempty" bson:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty" bson:"end_date,omitempty"`
	Current     bool     `json:"current" bson:"current"`
	Description string   `json:"description,omitempty" bson:"description,omitempty"`
	Highlights  []string `json:"highlights" bson:"highlights"`
	OrderIndex  int      `json:"order_index" bson:"order_index"`
}

// Interview is a press or podcast appearance.
type Interview struct {
	ID          string `json:"id" bson:"_id"`
	Title       string `json:"title" bson:"title"`
	Publisher   string `json:"publisher,omitempty" bson:"publisher,omitempty"`
	URL         string `json:"url,omitempty" bson:"url,omitempty"`
	PublishedAt string `json:"published_at,omitempty" bson:"published_at,omitempty"`
	Summary     string `json:"summary,omitempty" bson:"summary,omitempty"`
	OrderIndex  int    `json:"order_index" bson:"order_index"`
}

// Message is a guestbook entry.
type Message struct {
	ID            string     `json:"id" bson:"_id"`
	VisitorID     string     `json:"visitor_id" bson:"visitor_id"`
	Author        string     `json:"author" bson:"author"`
	Content       string     `json:"content" bson:"content"`
	IsSecret      bool       `json:"is_secret" bson:"is_secret"`
	IsReplyLocked bool       `json:"is_reply_locked" bson:"is_reply_locked"`
	Reply         string     `json:"reply,omitempty" bson:"reply,omitempty"`
	RepliedAt     *time.Time `json:"replied_at,omitempty" bson:"replied_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
}

// Category groups projects.
type Category struct {
	ID         string `json:"id" bson:"_id"`
	Name       string `json:"name" bson:"name"`
	Slug       string `json:"slug" bson:"slug"`
	OrderIndex int    `json:"order_index" bson:"order_index"`
}

func (p Profile) RecordID() string    { return p.ID }
func (p Project) RecordID() string    { return p.ID }
func (e Experience) RecordID() string { return e.ID }
func (i Interview) RecordID() string  { return i.ID }
func (m Message) RecordID() string    { return m.ID }
func (c Category) RecordID() string   { return c.ID }
