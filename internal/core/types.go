package core

import "nucleicore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
)

const (
	EntityDataset      = domain.EntityDataset
	EntityCollection   = domain.EntityCollection
	EntityCell         = domain.EntityCell
	EntityNucleus      = domain.EntityNucleus
	EntityConsensus    = domain.EntityConsensus
	EntitySegment      = domain.EntitySegment
	EntityClusterGroup = domain.EntityClusterGroup
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
