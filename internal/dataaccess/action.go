package dataaccess

import (
	"strings"

	"github.com/zjrosen/regd/internal/handler/method"
)

// Action is the REG_ACTION code of an activity record.
type Action int

// ActionAny matches every action in a LogQuery.
const ActionAny Action = -1

const (
	ActionAdd Action = iota
	ActionUpdate
	ActionComment
	ActionDeleteComment
	ActionTag
	ActionRemoveTag
	ActionRating
	ActionDelete
	ActionRestore
	ActionRename
	ActionMove
	ActionCopy
	ActionCreateSymbolicLink
	ActionRemoveLink
	ActionAddAssociation
	ActionRemoveAssociation
	ActionInvokeAspect
	ActionCreateVersion
	ActionRestoreVersion
)

var actionNames = map[Action]string{
	ActionAny:                "any",
	ActionAdd:                "add",
	ActionUpdate:             "update",
	ActionComment:            "comment",
	ActionDeleteComment:      "delete-comment",
	ActionTag:                "tag",
	ActionRemoveTag:          "remove-tag",
	ActionRating:             "rating",
	ActionDelete:             "delete",
	ActionRestore:            "restore",
	ActionRename:             "rename",
	ActionMove:               "move",
	ActionCopy:               "copy",
	ActionCreateSymbolicLink: "create-symlink",
	ActionRemoveLink:         "remove-link",
	ActionAddAssociation:     "add-association",
	ActionRemoveAssociation:  "remove-association",
	ActionInvokeAspect:       "invoke-aspect",
	ActionCreateVersion:      "create-version",
	ActionRestoreVersion:     "restore-version",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// ParseAction accepts an action name ("update", "add-association") as
// printed by String.
func ParseAction(s string) (Action, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a, true
		}
	}
	return ActionAny, false
}

var methodActions = map[method.Method]Action{
	method.Put:               ActionUpdate,
	method.Import:            ActionAdd,
	method.PutChild:          ActionAdd,
	method.ImportChild:       ActionAdd,
	method.Delete:            ActionDelete,
	method.InvokeAspect:      ActionInvokeAspect,
	method.Move:              ActionMove,
	method.Copy:              ActionCopy,
	method.Rename:            ActionRename,
	method.CreateLink:        ActionCreateSymbolicLink,
	method.RemoveLink:        ActionRemoveLink,
	method.AddAssociation:    ActionAddAssociation,
	method.RemoveAssociation: ActionRemoveAssociation,
	method.ApplyTag:          ActionTag,
	method.RemoveTag:         ActionRemoveTag,
	method.AddComment:        ActionComment,
	method.EditComment:       ActionComment,
	method.RemoveComment:     ActionDeleteComment,
	method.RateResource:      ActionRating,
	method.CreateVersion:     ActionCreateVersion,
	method.RestoreVersion:    ActionRestoreVersion,
	method.Restore:           ActionRestore,
}

// ActionForMethod returns the action recorded for a write operation. Reads
// have no action.
func ActionForMethod(m method.Method) (Action, bool) {
	a, ok := methodActions[m]
	return a, ok
}
