package types

// IsValidAction checks an action string from the wire before use.
func IsValidAction(action Action) bool {
	return action == ActionChat || action == ActionCall
}

// IsValidStatus checks a status string from the wire before use.
func IsValidStatus(status RequestStatus) bool {
	switch status {
	case StatusRequested, StatusScheduled, StatusAccepted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Validate ensures a pending request satisfies the store's invariants
// before it is admitted.
func (r *PendingRequest) Validate() error {
	if r.ID == "" {
		return ErrMissingRequestID
	}
	if r.ProviderID == "" {
		return ErrMissingProviderID
	}
	if !IsValidAction(r.Action) {
		return ErrInvalidAction
	}
	if !IsValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	// A non-terminal request must carry exactly the deadline its status
	// prescribes; a request with neither is a defect upstream.
	if !r.Status.Terminal() {
		if _, ok := r.ActiveDeadline(); !ok {
			return ErrNoActiveDeadline
		}
	}
	return nil
}

// Validate ensures a consultation adopted from the server is usable.
func (c *ActiveConsultation) Validate() error {
	if c.ID == "" {
		return ErrMissingRequestID
	}
	if c.ProviderID == "" {
		return ErrMissingProviderID
	}
	if c.TimeRemaining < 0 {
		return ErrNegativeRemaining
	}
	return nil
}

// Validate ensures the session identity is complete before the channel
// announces it.
func (s *UserSession) Validate() error {
	if s.UserID == "" || s.SessionID == "" {
		return ErrMissingUserSession
	}
	return nil
}
