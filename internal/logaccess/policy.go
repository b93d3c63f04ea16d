package logaccess

import (
	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

// Policy enforces the owner-only / self-only predicates of spec.md §4.7,
// ported from the original source's LogPolicy.
type Policy struct {
	index *Index
}

func NewPolicy(index *Index) *Policy {
	return &Policy{index: index}
}

// CheckTaskAccess allows a requester to read a task's logs only if that
// task is indexed as belonging to the requester's own container.
func (p *Policy) CheckTaskAccess(requesterContainerID, targetTaskID string) error {
	owner, ok := p.index.ContainerForTask(targetTaskID)
	if !ok {
		return gatewayerr.New(gatewayerr.NotFound, "task not found in log index")
	}
	if owner != requesterContainerID {
		return gatewayerr.New(gatewayerr.PolicyDenied, "task access denied: not the owning container")
	}
	return nil
}

// CheckContainerAccess allows a requester to read container logs only
// for itself.
func (p *Policy) CheckContainerAccess(requesterContainerID, targetContainerID string) error {
	if requesterContainerID != targetContainerID {
		return gatewayerr.New(gatewayerr.PolicyDenied, "container access denied: not the owning container")
	}
	return nil
}

// CheckSearchScope allows only scope "self" for log search.
func (p *Policy) CheckSearchScope(scope string) error {
	if scope != "self" {
		return gatewayerr.New(gatewayerr.PolicyDenied, "search scope must be self")
	}
	return nil
}
