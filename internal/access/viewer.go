package access

import "time"

// Kind classifies who is looking at a document.
type Kind int

const (
	KindOwner Kind = iota + 1
	KindAuthenticated
	KindGuest
)

func (k Kind) String() string {
	switch k {
	case KindOwner:
		return "owner"
	case KindAuthenticated:
		return "authenticated"
	case KindGuest:
		return "guest"
	}
	return "unknown"
}

// Viewer is the capability descriptor produced by Gate.Classify. It is bound
// to one document; guests additionally carry the end of their link's window.
type Viewer struct {
	Kind       Kind      `json:"kind"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId,omitempty"`
	// DisplayName is the registered user's name, or the free-text name a
	// guest typed for this request. Guest names are not an identity.
	DisplayName string    `json:"displayName,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

func (v Viewer) IsGuest() bool { return v.Kind == KindGuest }

func (v Viewer) Registered() bool {
	return v.Kind == KindOwner || v.Kind == KindAuthenticated
}

// Active reports whether the viewer may still act on documentID at now.
func (v Viewer) Active(documentID string, now time.Time) bool {
	if documentID == "" || v.DocumentID != documentID {
		return false
	}
	switch v.Kind {
	case KindOwner, KindAuthenticated:
		return true
	case KindGuest:
		return !now.After(v.ExpiresAt)
	}
	return false
}

func (v Viewer) CanSubscribe(documentID string, now time.Time) bool { return v.Active(documentID, now) }
func (v Viewer) CanPublish(documentID string, now time.Time) bool   { return v.Active(documentID, now) }
