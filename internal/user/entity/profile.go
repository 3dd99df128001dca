package entity

// Profile bridges a user to the legacy forum account.
// One row per user; fields stay empty until the forum migration fills them.
type Profile struct {
	ID           int64  `db:"id" json:"id"`
	UserID       int64  `db:"user_id" json:"user_id"`
	MybbLoginKey string `db:"mybb_loginkey" json:"mybb_loginkey"`
	MybbUID      *int64 `db:"mybb_uid" json:"mybb_uid"`
}

// MaxMybbLoginKeyLen matches the mybb_loginkey column width.
const MaxMybbLoginKeyLen = 100

// NewProfile returns the default profile for a freshly created user.
func NewProfile(userID int64) *Profile {
	return &Profile{UserID: userID}
}
