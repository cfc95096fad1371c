package domain

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusActive             Status = "ACTIVE"
	StatusInactive           Status = "INACTIVE"
	StatusSuspended          Status = "SUSPENDED"
	StatusLocked             Status = "LOCKED"
	StatusExpired            Status = "EXPIRED"
	StatusCredentialsExpired Status = "CREDENTIALS_EXPIRED"
	StatusPendingActivation  Status = "PENDING_ACTIVATION"
	StatusPendingApproval    Status = "PENDING_APPROVAL"
)

var statusNames = map[Status]string{
	StatusActive:             "Active",
	StatusInactive:           "Inactive",
	StatusSuspended:          "Suspended",
	StatusLocked:             "Locked",
	StatusExpired:            "Expired",
	StatusCredentialsExpired: "Credentials Expired",
	StatusPendingActivation:  "Pending Activation",
	StatusPendingApproval:    "Pending Approval",
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := statusNames[st]; !ok {
		return "", fmt.Errorf("unknown account status %q", s)
	}
	return st, nil
}

// CanLogin is true only for ACTIVE accounts.
func (s Status) CanLogin() bool { return s == StatusActive }

// RequiresAction reports statuses an administrator or the user must resolve.
func (s Status) RequiresAction() bool {
	switch s {
	case StatusPendingActivation, StatusPendingApproval, StatusCredentialsExpired:
		return true
	}
	return false
}

func (s Status) DisplayName() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return string(s)
}
