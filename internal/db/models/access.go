package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Visibility controls whether a resource is discoverable outside its ACL lists
type Visibility string

const (
	// VisibilityPrivate restricts a resource to the ids in its ACL lists
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic makes a resource readable by anyone
	VisibilityPublic Visibility = "public"
)

// AccessControl describes who may read, write, or administer a resource.
// The three lists are independent; membership in one grants nothing in the others.
type AccessControl struct {
	Visibility Visibility `json:"visibility"`
	Read       []string   `json:"read"`
	Write      []string   `json:"write"`
	Admin      []string   `json:"admin"`
}

// DefaultAccessControl returns the access descriptor for a newly created resource.
// An owned resource grants its owner all three levels; an owner-less resource is
// private with empty lists.
func DefaultAccessControl(ownerID string) AccessControl {
	ac := AccessControl{Visibility: VisibilityPrivate}
	if ownerID != "" {
		ac.Read = []string{ownerID}
		ac.Write = []string{ownerID}
		ac.Admin = []string{ownerID}
	}
	return ac
}

// CanRead reports whether the given id may read the resource.
func (ac AccessControl) CanRead(id string) bool {
	if ac.Visibility == VisibilityPublic {
		return true
	}
	return contains(ac.Read, id) || contains(ac.Admin, id)
}

// CanWrite reports whether the given id may mutate the resource.
func (ac AccessControl) CanWrite(id string) bool {
	return contains(ac.Write, id) || contains(ac.Admin, id)
}

// CanAdmin reports whether the given id may administer the resource.
func (ac AccessControl) CanAdmin(id string) bool {
	return contains(ac.Admin, id)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer so AccessControl can be stored as jsonb
func (ac AccessControl) Value() (driver.Value, error) {
	return json.Marshal(ac)
}

// Scan implements sql.Scanner so AccessControl can be loaded from jsonb
func (ac *AccessControl) Scan(value interface{}) error {
	if value == nil {
		*ac = AccessControl{Visibility: VisibilityPrivate}
		return nil
	}
	b, err := toBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan access control: %w", err)
	}
	return json.Unmarshal(b, ac)
}

func toBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unexpected column type %T", value)
	}
}
