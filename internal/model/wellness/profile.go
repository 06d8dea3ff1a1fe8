package wellness

// Profile merges the identity record with the user-editable fields kept in the store.
type Profile struct {
	UID           string         `json:"uid"`
	Email         string         `json:"email"`
	DisplayName   string         `json:"displayName"`
	PhotoURL      string         `json:"photoURL"`
	EmailVerified bool           `json:"emailVerified"`
	CreatedAt     int64          `json:"createdAt,omitempty"`
	Bio           string         `json:"bio"`
	Preferences   map[string]any `json:"preferences"`
}

// ProfileDoc is the stored, user-editable part of a profile.
type ProfileDoc struct {
	DisplayName string         `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	Bio         string         `json:"bio,omitempty" firestore:"bio,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty" firestore:"preferences,omitempty"`
	PhotoURL    string         `json:"photoURL,omitempty" firestore:"photoURL,omitempty"`
}

// ProfilePatch lists the profile fields a user may change. Nil fields are left untouched.
type ProfilePatch struct {
	DisplayName *string
	Bio         *string
	Preferences map[string]any
	PhotoURL    *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.DisplayName == nil && p.Bio == nil && p.Preferences == nil && p.PhotoURL == nil
}

// Apply merges the patch into doc.
func (p ProfilePatch) Apply(doc *ProfileDoc) {
	if p.DisplayName != nil {
		doc.DisplayName = *p.DisplayName
	}
	if p.Bio != nil {
		doc.Bio = *p.Bio
	}
	if p.Preferences != nil {
		doc.Preferences = p.Preferences
	}
	if p.PhotoURL != nil {
		doc.PhotoURL = *p.PhotoURL
	}
}

// Stats is the per-user activity summary.
type Stats struct {
	ConversationCount  int      `json:"conversationCount"`
	JournalCount       int      `json:"journalCount"`
	MoodCount          int      `json:"moodCount"`
	GoalCount          int      `json:"goalCount"`
	CompletedGoalCount int      `json:"completedGoalCount"`
	AverageMood        *float64 `json:"averageMood"`
}
