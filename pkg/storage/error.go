package storage

// NotFoundError is returned when a conversation doesn't exist in the store.
type NotFoundError struct {
	UserID string
	Topic  string
}

func (e NotFoundError) Error() string {
	if e.UserID == "" && e.Topic == "" {
		return "conversation not found"
	}

	return "conversation not found: " + e.UserID + "/" + e.Topic
}
