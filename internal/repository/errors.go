// Package repository implements data access over MySQL. This file defines
// sentinel errors shared across repositories so handlers can translate
// failure modes into HTTP responses without inspecting SQL errors.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// record whose agent or customer is someone else. Handlers translate this
// into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals that an operation cannot proceed due to existing
// state. Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrUsernameExists and ErrEmailExists distinguish the two uniqueness
// violations on registration so the client gets a precise message.
var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)

// ErrPolicyNumberExists is returned when creating or renumbering a policy
// would duplicate another policy's number.
var ErrPolicyNumberExists = errors.New("policy number already exists")

// ErrAlreadyLinked is returned when an agent links a customer they are
// already linked to.
var ErrAlreadyLinked = errors.New("agent already linked to customer")

// ErrActivePolicies blocks customer deletion while any of the customer's
// policies is still active.
var ErrActivePolicies = errors.New("customer has active policies")
