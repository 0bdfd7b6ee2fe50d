// Package reconcile decides which of the local and remote override sets is
// authoritative after a pull.
package reconcile

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

// Source names the side whose patches won.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Decision reasons.
const (
	ReasonBothEmpty   = "both empty"
	ReasonLocalEmpty  = "local empty"
	ReasonRemoteEmpty = "remote empty"
	ReasonLocalNewer  = "local newer"
	ReasonRemoteWins  = "remote newer or unknown"
)

// SummaryLimit is how many changed keys the status line lists.
const SummaryLimit = 12

type Input struct {
	Local           models.PatchSet
	LocalModifiedAt *time.Time
	Remote          models.PatchSet
	RemoteUpdatedAt *time.Time
}

type Outcome struct {
	Patches models.PatchSet
	Source  Source
	Reason  string
	// ChangedKeys lists keys whose patch differs between the local input and
	// Patches, sorted.
	ChangedKeys []string
}

// Reconcile applies the last-writer-wins table:
//
//	local empty,  remote empty  -> remote
//	local empty,  remote set    -> remote
//	local set,    remote empty  -> local
//	local set,    remote set    -> local only if LocalModifiedAt > RemoteUpdatedAt
//
// Missing timestamps and ties go to remote. The returned patches are a copy.
func Reconcile(in Input) Outcome {
	var out Outcome
	localEmpty, remoteEmpty := len(in.Local) == 0, len(in.Remote) == 0

	switch {
	case localEmpty && remoteEmpty:
		out.Source, out.Reason = SourceRemote, ReasonBothEmpty
	case localEmpty:
		out.Source, out.Reason = SourceRemote, ReasonLocalEmpty
	case remoteEmpty:
		out.Source, out.Reason = SourceLocal, ReasonRemoteEmpty
	case in.LocalModifiedAt != nil && in.RemoteUpdatedAt != nil && in.LocalModifiedAt.After(*in.RemoteUpdatedAt):
		out.Source, out.Reason = SourceLocal, ReasonLocalNewer
	default:
		out.Source, out.Reason = SourceRemote, ReasonRemoteWins
	}

	if out.Source == SourceLocal {
		out.Patches = in.Local.Clone()
	} else {
		out.Patches = in.Remote.Clone()
	}
	out.ChangedKeys = DiffKeys(in.Local, out.Patches)
	return out
}

// DiffKeys returns the sorted keys present in either set whose canonical JSON
// differs between a and b.
func DiffKeys(a, b models.PatchSet) []string {
	var changed []string
	for k := range a {
		if !bytes.Equal(a.Canonical(k), b.Canonical(k)) {
			changed = append(changed, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// Summary renders the changed keys for the status line, listing at most limit
// of them. An empty string means nothing changed.
func (o Outcome) Summary(limit int) string {
	n := len(o.ChangedKeys)
	if n == 0 {
		return ""
	}
	shown := o.ChangedKeys
	suffix := ""
	if limit > 0 && n > limit {
		shown = shown[:limit]
		suffix = "…"
	}
	noun := "changes"
	if n == 1 {
		noun = "change"
	}
	return fmt.Sprintf("%d %s: %s%s", n, noun, strings.Join(shown, ", "), suffix)
}
