// Package lifecycle classifies the live state of a domain and derives
// the set of actions that are legal in that state.
//
// The classification is flat: it trusts the hypervisor-reported flags
// at the moment of query and caches nothing, because external actors
// (including this tool's own previous action) may change state between
// menu renders.
package lifecycle

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

// State is a domain's current lifecycle state.
type State string

const (
	// StateRunning means the domain is active.
	StateRunning State = "running"
	// StateSaved means the domain is not active but has a managed save
	// image it can resume from.
	StateSaved State = "saved"
	// StateStopped means the domain is neither active nor saved.
	StateStopped State = "stopped"
)

// IsValid checks if the state is a known value.
func (s State) IsValid() bool {
	switch s {
	case StateRunning, StateSaved, StateStopped:
		return true
	}
	return false
}

// ActionKind identifies one user-selectable operation on a domain.
// The dispatcher matches on the kind, never on menu item identity.
type ActionKind int

const (
	ActionStart ActionKind = iota
	ActionShutdown
	ActionForceOff
	ActionSaveState
	ActionRestoreState
	ActionDiscardSave
	ActionCleanStart
	ActionOpenViewer
	ActionLinkedClone
	ActionHeavyClone
	ActionSnapshot
	ActionRestoreSnapshot
	ActionMove
	ActionAddLabel
	ActionRemoveLabel
	ActionEditDescriptor
)

// Action pairs an action kind with its menu label.
type Action struct {
	Kind  ActionKind
	Label string
}

// state-dependent action groups
var (
	runningActions = []Action{
		{ActionShutdown, "Shutdown"},
		{ActionForceOff, "Force Off"},
		{ActionSaveState, "Save State"},
		{ActionOpenViewer, "Open Viewer"},
	}
	savedActions = []Action{
		{ActionRestoreState, "Restore Save State"},
		{ActionDiscardSave, "Remove Save State"},
		{ActionCleanStart, "Remove Save State and Start"},
	}
	stoppedActions = []Action{
		{ActionStart, "Start"},
	}

	// commonActions are legal in every state.
	commonActions = []Action{
		{ActionLinkedClone, "Clone (Linked)"},
		{ActionHeavyClone, "Clone (Heavy)"},
		{ActionSnapshot, "Take a Snapshot"},
		{ActionRestoreSnapshot, "Restore Snapshot"},
		{ActionMove, "Move To..."},
		{ActionAddLabel, "Add Label"},
		{ActionRemoveLabel, "Remove Label"},
		{ActionEditDescriptor, "Edit XML"},
	}
)

// libvirtClient defines the libvirt operations needed for classification.
type libvirtClient interface {
	DomainIsActive(Dom libvirt.Domain) (int32, error)
	DomainHasManagedSaveImage(Dom libvirt.Domain, Flags uint32) (int32, error)
}

// Classify computes the domain's current lifecycle state from live
// hypervisor flags.
func Classify(client libvirtClient, dom libvirt.Domain) (State, error) {
	active, err := client.DomainIsActive(dom)
	if err != nil {
		return "", fmt.Errorf("failed to query domain state: %w", err)
	}
	if active != 0 {
		return StateRunning, nil
	}

	saved, err := client.DomainHasManagedSaveImage(dom, 0)
	if err != nil {
		return "", fmt.Errorf("failed to query managed save image: %w", err)
	}
	if saved != 0 {
		return StateSaved, nil
	}

	return StateStopped, nil
}

// ActionsFor returns the legal actions for a state: the state-specific
// group followed by the always-available group.
func ActionsFor(state State) []Action {
	var out []Action
	switch state {
	case StateRunning:
		out = append(out, runningActions...)
	case StateSaved:
		out = append(out, savedActions...)
	case StateStopped:
		out = append(out, stoppedActions...)
	}
	return append(out, commonActions...)
}
