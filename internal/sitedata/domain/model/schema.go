package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	sharederrors "portfolio-sync/internal/shared/errors"

	"github.com/google/uuid"
)

// Default values for records written without them.
const (
	AnonymousVisitorID = "anonymous"
	AnonymousAuthor    = "Anonymous"
	ProfileRecordID    = "profile"
)

// legacyIDSpace derives stable ids for records stored without one, so two
// loads of the same bytes agree.
var legacyIDSpace = uuid.MustParse("6f3c8a52-1d0e-4f7b-9c61-2a9e5b7d4c10")

// Encode serialises a snapshot to its stored form: an object for PROFILE, an
// array for everything else.
func Encode(snap Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("encode: nil snapshot")
	}
	if p, ok := snap.(*Profile); ok {
		snap = *p
	}
	if snap.Key() != KeyProfile && snap.Len() == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(snap)
}

// Decode parses a stored value. Elements that do not parse are dropped and
// the rest are normalised. A value that is not the right JSON shape at all
// returns ErrMalformedSnapshot.
func Decode(key CollectionKey, raw []byte) (Snapshot, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", sharederrors.ErrUnknownCollection, key)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty value for %s", sharederrors.ErrMalformedSnapshot, key)
	}
	// A stored null is an absent value, not an empty collection.
	if bytes.Equal(raw, []byte("null")) {
		return Seed(key), nil
	}

	if key == KeyProfile {
		var p Profile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", sharederrors.ErrMalformedSnapshot, key, err)
		}
		return Normalize(p), nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sharederrors.ErrMalformedSnapshot, key, err)
	}

	var snap Snapshot
	switch key {
	case KeyProjects:
		snap = Projects(decodeEach[Project](elems))
	case KeyExperiences:
		snap = Experiences(decodeEach[Experience](elems))
	case KeyInterviews:
		snap = Interviews(decodeEach[Interview](elems))
	case KeyMessages:
		snap = Messages(decodeEach[Message](elems))
	case KeyCategories:
		snap = Categories(decodeEach[Category](elems))
	}
	return Normalize(snap), nil
}

func decodeEach[T any](elems []json.RawMessage) []T {
	out := make([]T, 0, len(elems))
	for _, elem := range elems {
		var rec T
		if err := json.Unmarshal(elem, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// DecodeInput parses a snapshot supplied by a writer (HTTP body, CLI file).
// Unlike Decode it rejects any element that does not parse.
func DecodeInput(key CollectionKey, raw []byte) (Snapshot, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", sharederrors.ErrUnknownCollection, key)
	}
	var (
		snap Snapshot
		err  error
	)
	switch key {
	case KeyProfile:
		var p Profile
		err = json.Unmarshal(raw, &p)
		snap = p
	case KeyProjects:
		var s Projects
		err = json.Unmarshal(raw, &s)
		snap = s
	case KeyExperiences:
		var s Experiences
		err = json.Unmarshal(raw, &s)
		snap = s
	case KeyInterviews:
		var s Interviews
		err = json.Unmarshal(raw, &s)
		snap = s
	case KeyMessages:
		var s Messages
		err = json.Unmarshal(raw, &s)
		snap = s
	case KeyCategories:
		var s Categories
		err = json.Unmarshal(raw, &s)
		snap = s
	}
	if err != nil {
		return nil, sharederrors.NewValidationError(fmt.Sprintf("invalid %s payload", key)).WithCause(err)
	}
	return snap, nil
}

// Normalize fills missing optional fields and drops records that have
// neither an id nor a label. It only fills empty values, so applying it twice
// gives the same result. The input is not modified.
func Normalize(snap Snapshot) Snapshot {
	switch s := snap.(type) {
	case *Profile:
		if s == nil {
			return Seed(KeyProfile)
		}
		return normalizeProfile(*s)
	case Profile:
		return normalizeProfile(s)
	case Projects:
		out := make(Projects, 0, len(s))
		ids := newIDFiller(KeyProjects)
		for _, p := range s {
			if !ids.fill(&p.ID, p.Title) {
				continue
			}
			p.Tags = nonNil(p.Tags)
			out = append(out, p)
		}
		return out
	case Experiences:
		out := make(Experiences, 0, len(s))
		ids := newIDFiller(KeyExperiences)
		for _, e := range s {
			if !ids.fill(&e.ID, firstNonEmpty(e.Company, e.Role)) {
				continue
			}
			e.Highlights = nonNil(e.Highlights)
			out = append(out, e)
		}
		return out
	case Interviews:
		out := make(Interviews, 0, len(s))
		ids := newIDFiller(KeyInterviews)
		for _, iv := range s {
			if !ids.fill(&iv.ID, firstNonEmpty(iv.Title, iv.URL)) {
				continue
			}
			out = append(out, iv)
		}
		return out
	case Messages:
		out := make(Messages, 0, len(s))
		ids := newIDFiller(KeyMessages)
		for _, m := range s {
			if !ids.fill(&m.ID, m.Content) {
				continue
			}
			if strings.TrimSpace(m.VisitorID) == "" {
				m.VisitorID = AnonymousVisitorID
			}
			if strings.TrimSpace(m.Author) == "" {
				m.Author = AnonymousAuthor
			}
			out = append(out, m)
		}
		return out
	case Categories:
		out := make(Categories, 0, len(s))
		ids := newIDFiller(KeyCategories)
		for _, c := range s {
			if !ids.fill(&c.ID, c.Name) {
				continue
			}
			if c.Slug == "" {
				c.Slug = Slugify(firstNonEmpty(c.Name, c.ID))
			}
			out = append(out, c)
		}
		return out
	}
	return snap
}

func normalizeProfile(p Profile) Snapshot {
	if strings.TrimSpace(p.ID) == "" && strings.TrimSpace(p.Name) == "" {
		return Seed(KeyProfile)
	}
	if p.ID == "" {
		p.ID = ProfileRecordID
	}
	socials := make([]SocialLink, 0, len(p.Socials))
	for _, link := range p.Socials {
		if link.URL == "" && link.Label == "" {
			continue
		}
		socials = append(socials, link)
	}
	p.Socials = socials
	p.Skills = nonNil(p.Skills)
	return p
}

// idFiller derives ids for records that only carry a label. Records sharing
// a label are told apart by how many came before them in the collection.
type idFiller struct {
	key  CollectionKey
	seen map[string]int
}

func newIDFiller(key CollectionKey) *idFiller {
	return &idFiller{key: key, seen: map[string]int{}}
}

// fill assigns a derived id when only a label is present. It returns false
// when the record has neither and must be dropped.
func (f *idFiller) fill(id *string, label string) bool {
	if strings.TrimSpace(*id) != "" {
		return true
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	name := string(f.key) + "\x00" + label
	if n := f.seen[label]; n > 0 {
		name += fmt.Sprintf("\x00%d", n)
	}
	f.seen[label]++
	*id = uuid.NewSHA1(legacyIDSpace, []byte(name)).String()
	return true
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
