package model

import "sort"

// Snapshot is the complete value of one collection at a point in time.
// Profile is a snapshot on its own; the sequence collections use the slice
// types below.
type Snapshot interface {
	Key() CollectionKey
	Len() int
}

type (
	Projects    []Project
	Experiences []Experience
	Interviews  []Interview
	Messages    []Message
	Categories  []Category
)

func (Profile) Key() CollectionKey     { return KeyProfile }
func (Projects) Key() CollectionKey    { return KeyProjects }
func (Experiences) Key() CollectionKey { return KeyExperiences }
func (Interviews) Key() CollectionKey  { return KeyInterviews }
func (Messages) Key() CollectionKey    { return KeyMessages }
func (Categories) Key() CollectionKey  { return KeyCategories }

func (Profile) Len() int       { return 1 }
func (s Projects) Len() int    { return len(s) }
func (s Experiences) Len() int { return len(s) }
func (s Interviews) Len() int  { return len(s) }
func (s Messages) Len() int    { return len(s) }
func (s Categories) Len() int  { return len(s) }

// Records flattens a snapshot into its records.
func Records(snap Snapshot) []Record {
	switch s := snap.(type) {
	case Profile:
		return []Record{s}
	case *Profile:
		return []Record{*s}
	case Projects:
		return toRecords(s)
	case Experiences:
		return toRecords(s)
	case Interviews:
		return toRecords(s)
	case Messages:
		return toRecords(s)
	case Categories:
		return toRecords(s)
	}
	return nil
}

func toRecords[T Record](in []T) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

// Sorted returns a copy of snap in display order: ascending order_index,
// newest first for messages. Ties keep their stored order.
func Sorted(snap Snapshot) Snapshot {
	switch s := snap.(type) {
	case Projects:
		out := append(make(Projects, 0, len(s)), s...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
		return out
	case Experiences:
		out := append(make(Experiences, 0, len(s)), s...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
		return out
	case Interviews:
		out := append(make(Interviews, 0, len(s)), s...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
		return out
	case Categories:
		out := append(make(Categories, 0, len(s)), s...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
		return out
	case Messages:
		out := append(make(Messages, 0, len(s)), s...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		return out
	}
	return snap
}

// FindMessage returns the index of the message with id, or -1.
func (s Messages) FindMessage(id string) int {
	for i, m := range s {
		if m.ID == id {
			return i
		}
	}
	return -1
}
