// Package labelmap normalizes the two mailbox backends' grouping concepts --
// Gmail labels and Outlook mail folders -- into the shared Label model, and
// encodes each backend's archive, delete and move semantics.
package labelmap

import (
	"regexp"
	"strings"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
)

// Pseudo-label ids accepted in modify requests. Each backend translates them
// into its native operation: Gmail mutates the label set, Outlook moves the
// message between folders.
const (
	// Archive removes the message from the inbox view.
	Archive = "ARCHIVE"
	// Trash moves the message to the trash/deleted-items state.
	Trash = "TRASH"
	// Inbox is Gmail's system inbox label id.
	Inbox = "INBOX"
	// Spam is Gmail's system spam label id.
	Spam = "SPAM"
)

var (
	archiveFolderRe = regexp.MustCompile(`(?i)^archive$`)
	deletedFolderRe = regexp.MustCompile(`(?i)deleted|trash`)
	terminalNameRe  = regexp.MustCompile(`(?i)deleted|trash|spam|junk`)
)

// GmailModify translates pseudo-label ids into Gmail's native label
// mutations. Archiving is the removal of INBOX; deleting is the addition of
// TRASH. Regular label ids pass through unchanged.
func GmailModify(addIDs, removeIDs []string) (add, remove []string) {
	for _, id := range addIDs {
		switch id {
		case Archive:
			remove = append(remove, Inbox)
		default:
			add = append(add, id)
		}
	}
	remove = append(remove, removeIDs...)
	return ApplyMoveSemantics(add, remove)
}

// ApplyMoveSemantics enforces the shared move contract: moving a message to
// a label implies removing it from the label it was viewed under, unless the
// target is a terminal state (trash or spam), in which case nothing is
// removed in addition to the add.
func ApplyMoveSemantics(addIDs, removeIDs []string) (add, remove []string) {
	for _, id := range addIDs {
		if IsTerminal(id) {
			return addIDs, nil
		}
	}
	return addIDs, removeIDs
}

// IsTerminal reports whether a label id or folder name denotes a terminal
// message state.
func IsTerminal(idOrName string) bool {
	return terminalNameRe.MatchString(idOrName)
}

// ResolveGraphDestination maps a modify-request add id onto an Outlook
// destination folder id. Pseudo-labels are resolved by folder name: Archive
// requires a folder named "archive" (case-insensitive), Trash a folder whose
// name matches deleted/trash. When the required folder does not exist in the
// account, the operation fails with NotFound and no move is attempted, so
// the message state is left unchanged.
func ResolveGraphDestination(folders []email.Label, addID string) (string, error) {
	switch addID {
	case Archive:
		return findFolder(folders, archiveFolderRe, "archive folder")
	case Trash:
		return findFolder(folders, deletedFolderRe, "deleted items folder")
	}
	for _, f := range folders {
		if f.ID == addID {
			return f.ID, nil
		}
	}
	return "", apperr.NotFound("folder " + addID)
}

// findFolder returns the id of the first folder whose display name matches
// the pattern.
func findFolder(folders []email.Label, re *regexp.Regexp, resource string) (string, error) {
	for _, f := range folders {
		if re.MatchString(f.Name) {
			return f.ID, nil
		}
	}
	return "", apperr.NotFound(resource)
}

// FromGraphFolder maps an Outlook mail folder onto the shared Label model.
// Folders Outlook creates for every account (inbox, sent items and the like)
// are marked as system labels.
func FromGraphFolder(id, displayName string, wellKnown bool) email.Label {
	labelType := email.LabelTypeUser
	if wellKnown || isWellKnownFolderName(displayName) {
		labelType = email.LabelTypeSystem
	}
	return email.Label{ID: id, Name: displayName, Type: labelType}
}

// wellKnownFolderNames are the folder display names Outlook provisions on
// every mailbox.
var wellKnownFolderNames = map[string]bool{
	"inbox":         true,
	"drafts":        true,
	"sent items":    true,
	"deleted items": true,
	"junk email":    true,
	"archive":       true,
	"outbox":        true,
}

func isWellKnownFolderName(name string) bool {
	return wellKnownFolderNames[strings.ToLower(name)]
}

// FromGmailLabel maps a Gmail label onto the shared Label model.
func FromGmailLabel(id, name, labelType string) email.Label {
	t := email.LabelTypeUser
	if strings.EqualFold(labelType, "system") {
		t = email.LabelTypeSystem
	}
	return email.Label{ID: id, Name: name, Type: t}
}
