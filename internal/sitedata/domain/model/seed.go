package model

// Seed returns the built-in default snapshot for key. Every call returns a
// fresh value.
func Seed(key CollectionKey) Snapshot {
	switch key {
	case KeyProfile:
		return Profile{
			ID:      ProfileRecordID,
			Name:    "Site Owner",
			Title:   "Software Engineer",
			Bio:     "This portfolio has not been filled in yet.",
			Socials: []SocialLink{},
			Skills:  []string{},
		}
	case KeyProjects:
		return Projects{}
	case KeyExperiences:
		return Experiences{}
	case KeyInterviews:
		return Interviews{}
	case KeyMessages:
		return Messages{}
	case KeyCategories:
		return Categories{
			{ID: "web", Name: "Web", Slug: "web", OrderIndex: 0},
			{ID: "mobile", Name: "Mobile", Slug: "mobile", OrderIndex: 1},
			{ID: "other", Name: "Other", Slug: "other", OrderIndex: 2},
		}
	}
	return nil
}
