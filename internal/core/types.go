package core

import "pbxcore/pkg/domain"

type (
	FamilyType         = domain.FamilyType
	Liveness           = domain.Liveness
	LivenessFilter     = domain.LivenessFilter
	Severity           = domain.Severity
	Base               = domain.Base
	DialListMaster     = domain.DialListMaster
	DialEntry          = domain.DialEntry
	DialplanMaster     = domain.DialplanMaster
	DialplanStep       = domain.DialplanStep
	User               = domain.User
	Permission         = domain.Permission
	Contact            = domain.Contact
	Trunk              = domain.Trunk
	View               = domain.View
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	FamilyDialListMaster = domain.FamilyDialListMaster
	FamilyDialEntry      = domain.FamilyDialEntry
	FamilyDialplanMaster = domain.FamilyDialplanMaster
	FamilyDialplanStep   = domain.FamilyDialplanStep
	FamilyUser           = domain.FamilyUser
	FamilyPermission     = domain.FamilyPermission
	FamilyContact        = domain.FamilyContact
	FamilyTrunk          = domain.FamilyTrunk
)

const (
	LivenessActive  = domain.LivenessActive
	LivenessRetired = domain.LivenessRetired
)

const (
	FilterActive  = domain.FilterActive
	FilterRetired = domain.FilterRetired
	FilterAny     = domain.FilterAny
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionRetire = domain.ActionRetire
)
