package model

import (
	"fmt"
	"strings"

	sharederrors "portfolio-sync/internal/shared/errors"
)

// CollectionKey names one logical entity collection.
type CollectionKey string

const (
	KeyProfile     CollectionKey = "PROFILE"
	KeyProjects    CollectionKey = "PROJECTS"
	KeyExperiences CollectionKey = "EXPERIENCES"
	KeyInterviews  CollectionKey = "INTERVIEWS"
	KeyMessages    CollectionKey = "MESSAGES"
	KeyCategories  CollectionKey = "CATEGORIES"
)

// AllKeys lists every collection in a fixed order.
func AllKeys() []CollectionKey {
	return []CollectionKey{KeyProfile, KeyProjects, KeyExperiences, KeyInterviews, KeyMessages, KeyCategories}
}

var remoteNames = map[CollectionKey]string{
	KeyProfile:     "profile",
	KeyProjects:    "projects",
	KeyExperiences: "experiences",
	KeyInterviews:  "interviews",
	KeyMessages:    "messages",
	KeyCategories:  "categories",
}

// ParseCollectionKey accepts a key in any case, or its remote collection name.
func ParseCollectionKey(s string) (CollectionKey, error) {
	key := CollectionKey(strings.ToUpper(strings.TrimSpace(s)))
	if key.Valid() {
		return key, nil
	}
	return "", fmt.Errorf("%w: %q", sharederrors.ErrUnknownCollection, s)
}

// KeyForRemote maps a remote collection name back to its key.
func KeyForRemote(name string) (CollectionKey, bool) {
	for key, remote := range remoteNames {
		if remote == name {
			return key, true
		}
	}
	return "", false
}

func (k CollectionKey) Valid() bool {
	_, ok := remoteNames[k]
	return ok
}

func (k CollectionKey) String() string {
	return string(k)
}

// StorageKey is the entry name used in the local medium.
func (k CollectionKey) StorageKey() string {
	return "collection:" + string(k)
}

// RemoteCollection is the remote table holding this collection.
func (k CollectionKey) RemoteCollection() string {
	return remoteNames[k]
}

// Singleton reports whether the collection holds exactly one record.
func (k CollectionKey) Singleton() bool {
	return k == KeyProfile
}
