package dispatch

import (
	"fmt"
	"strings"
)

// ActionCode is the short operation code carried in the fifth field of a
// route token.
type ActionCode string

const (
	CodeShowAdd        ActionCode = "a"
	CodeSaveAdd        ActionCode = "as"
	CodeShowEdit       ActionCode = "e"
	CodeSaveEdit       ActionCode = "es"
	CodeShowEditBulk   ActionCode = "eb"
	CodeSaveEditBulk   ActionCode = "ebs"
	CodeDelete         ActionCode = "d"
	CodeDeleteSingle   ActionCode = "ds"
	CodeDeleteBulk     ActionCode = "db"
	CodeDeleteBulkSave ActionCode = "dbs"
	CodeForm           ActionCode = "f"
	CodeCard           ActionCode = "c"
	CodeTable          ActionCode = "t"
	CodeView           ActionCode = "v"
	CodeSelect         ActionCode = "s"
	CodeUnique         ActionCode = "u"
)

type ControllerName string

const (
	ShowAddCtrl  ControllerName = "ShowAddCtrl"
	SaveAddCtrl  ControllerName = "SaveAddCtrl"
	ShowEditCtrl ControllerName = "ShowEditCtrl"
	SaveEditCtrl ControllerName = "SaveEditCtrl"
	DeleteCtrl   ControllerName = "Delete"
	FormCtrl     ControllerName = "FormCtrl"
	CardCtrl     ControllerName = "CardCtrl"
	TableCtrl    ControllerName = "TableCtrl"
	ViewCtrl     ControllerName = "ViewCtrl"
	SelectHelper ControllerName = "SelectHelper"
	UniqueCtrl   ControllerName = "Unique"
	NavCtrl      ControllerName = "NavCtrl"
	TokenCtrl    ControllerName = "TokenCtrl"
)

// Scope says which namespace an action's controller lives in.
type Scope int

const (
	ScopeModule Scope = iota
	ScopeActions
	ScopeHelpers
)

type Action struct {
	Code       ActionCode
	Controller ControllerName
	Method     Method
}

// Scope reports where the controller for a is registered. Delete and
// uniqueness checks are shared across modules, as are select helpers.
func (a Action) Scope() Scope {
	switch a.Code {
	case CodeDelete, CodeDeleteSingle, CodeDeleteBulk, CodeDeleteBulkSave, CodeUnique:
		return ScopeActions
	case CodeSelect:
		return ScopeHelpers
	default:
		return ScopeModule
	}
}

var actionTable = []Action{
	{CodeShowAdd, ShowAddCtrl, MethodIndex},
	{CodeSaveAdd, SaveAddCtrl, MethodIndex},
	{CodeShowEdit, ShowEditCtrl, MethodIndex},
	{CodeSaveEdit, SaveEditCtrl, MethodIndex},
	{CodeShowEditBulk, ShowEditCtrl, MethodBulk},
	{CodeSaveEditBulk, SaveEditCtrl, MethodBulk},
	{CodeDelete, DeleteCtrl, MethodSingle},
	{CodeDeleteSingle, DeleteCtrl, MethodDeleteSingle},
	{CodeDeleteBulk, DeleteCtrl, MethodBulk},
	{CodeDeleteBulkSave, DeleteCtrl, MethodDeleteBulk},
	{CodeForm, FormCtrl, MethodIndex},
	{CodeCard, CardCtrl, MethodIndex},
	{CodeTable, TableCtrl, MethodIndex},
	{CodeView, ViewCtrl, MethodIndex},
	{CodeSelect, SelectHelper, MethodIndex},
	{CodeUnique, UniqueCtrl, MethodIndex},
}

var actionsByCode = func() map[ActionCode]Action {
	m := make(map[ActionCode]Action, len(actionTable))
	for _, a := range actionTable {
		if _, dup := m[a.Code]; dup {
			panic("dispatch: duplicate action code " + string(a.Code))
		}
		m[a.Code] = a
	}
	return m
}()

// Lookup returns the table entry for code. Unknown codes never default.
func Lookup(code ActionCode) (Action, bool) {
	a, ok := actionsByCode[code]
	return a, ok
}

// Actions returns the dispatch table in declaration order.
func Actions() []Action {
	return append([]Action(nil), actionTable...)
}

const tokenFields = 5

// ParseActionCode extracts the action code from the fifth "_" separated
// field of a raw token. The other fields are opaque.
func ParseActionCode(token string) (ActionCode, error) {
	fields := strings.Split(token, "_")
	if len(fields) < tokenFields {
		return "", fmt.Errorf("token has %d fields, need %d", len(fields), tokenFields)
	}
	code := ActionCode(fields[tokenFields-1])
	if _, ok := Lookup(code); !ok {
		return "", fmt.Errorf("unknown action code %q", code)
	}
	return code, nil
}
