package controller

import (
	"errors"
)

// The failure taxonomy of the decision-and-enforcement loop. None of
// these terminate the controller; every caller degrades to a safe
// fallback (flood, skip-reward, retry-once).
var (
	// ErrNotResolved: no binding is known for an address. The caller
	// falls back to flooding so ARP learning can catch up.
	ErrNotResolved = errors.New("address not resolved")

	// ErrInstallFailed: the switch channel rejected or dropped a
	// flow-mod. Retried at most once per new-flow event.
	ErrInstallFailed = errors.New("flow install failed")

	// ErrPartialInstall: one leg of a forward/reverse rule pair was
	// installed and the other failed. The installed leg must be
	// removed so no asymmetric half-route persists.
	ErrPartialInstall = errors.New("partial rule-pair install")

	// ErrUnknownLoad: a backend could not be polled. The sample is
	// replaced by a worst-case sentinel, never a hard failure.
	ErrUnknownLoad = errors.New("backend load unknown")

	// ErrSwitchDisconnected: fatal for that switch's pending
	// operations only. Bindings are re-learned on reconnect.
	ErrSwitchDisconnected = errors.New("switch disconnected")
)
