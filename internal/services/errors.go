// Package services defines the business logic for redemption, subscription
// gating, channel publishing, and statistics. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the bot/handler layer.
package services

import "errors"

// Button and publishing errors.
var (
	// ErrButtonNotFound indicates that the requested channel button does not
	// exist in the registry.
	ErrButtonNotFound = errors.New("button not found")

	// ErrEmptyButtonText is returned when a publish request carries no button
	// label.
	ErrEmptyButtonText = errors.New("button text is empty")

	// ErrEmptyPostText is returned when a publish request carries no post body.
	ErrEmptyPostText = errors.New("post text is empty")

	// ErrEmptyChannel is returned when no target channel is configured or
	// supplied.
	ErrEmptyChannel = errors.New("channel is empty")

	// ErrInvalidRewardKind is returned when a reward kind is outside the
	// allowed set (currently bot or external).
	ErrInvalidRewardKind = errors.New("reward kind must be bot or external")

	// ErrInvalidLink is returned when an external reward link does not start
	// with http:// or https://.
	ErrInvalidLink = errors.New("link must start with http:// or https://")
)
