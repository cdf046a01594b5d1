package hands

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds hand definitions and the instances activated from them.
// Definitions are loaded via LoadBundled (re-run by a Watcher when HAND.md
// files change) and replaced by Register; instances are mutated throughout
// the process lifetime.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]HandDefinition
	instances   map[string]*HandInstance
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]HandDefinition),
		instances:   make(map[string]*HandInstance),
	}
}

// Register adds or replaces a hand definition.
func (r *Registry) Register(def HandDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.ID] = def
}

// ListDefinitions returns all registered hand definitions.
func (r *Registry) ListDefinitions() []HandDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HandDefinition, 0, len(r.definitions))
	for _, d := range r.definitions {
		out = append(out, d)
	}
	return out
}

// GetDefinition returns the definition for id.
func (r *Registry) GetDefinition(id string) (HandDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[id]
	if !ok {
		return HandDefinition{}, ErrNotFound
	}
	return def, nil
}

// Activate creates a new Active instance for id. It fails with ErrNotFound
// if the definition is unknown, and ErrAlreadyActive if another instance of
// the same hand is already Active. The returned instance has no bound agent
// yet: the caller spawns the backing agent and calls SetAgent to bind it.
//
// The "at most one Active per hand_id" rule is checked by scanning the
// instance map under the write lock, so two Activate calls for the same hand
// cannot both succeed. Resume does not check it: resuming a Paused instance
// while another instance of the same hand is Active leaves two Active
// instances.
func (r *Registry) Activate(id string, config map[string]any) (*HandInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.definitions[id]; !ok {
		return nil, ErrNotFound
	}

	for _, inst := range r.instances {
		if inst.HandID == id && inst.Status == StatusActive {
			return nil, ErrAlreadyActive
		}
	}

	now := time.Now()
	inst := &HandInstance{
		InstanceID:  uuid.NewString(),
		HandID:      id,
		Status:      StatusActive,
		Config:      config,
		ActivatedAt: now,
		UpdatedAt:   now,
	}
	r.instances[inst.InstanceID] = inst

	cp := *inst
	return &cp, nil
}

// SetAgent binds a running agent id to an instance.
func (r *Registry) SetAgent(instanceID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	inst.AgentID = &agentID
	inst.UpdatedAt = time.Now()
	return nil
}

// Deactivate removes and returns the instance. The caller is responsible for
// killing the bound agent, if any.
func (r *Registry) Deactivate(instanceID string) (*HandInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	delete(r.instances, instanceID)
	return inst, nil
}

// Pause transitions an Active instance to Paused.
func (r *Registry) Pause(instanceID string) error {
	return r.setStatus(instanceID, StatusPaused)
}

// Resume transitions a Paused instance back to Active.
func (r *Registry) Resume(instanceID string) error {
	return r.setStatus(instanceID, StatusActive)
}

func (r *Registry) setStatus(instanceID string, status HandStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	inst.Status = status
	inst.ErrorMsg = ""
	inst.UpdatedAt = time.Now()
	return nil
}

// SetError marks an instance as errored with the given message.
func (r *Registry) SetError(instanceID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	inst.Status = StatusError
	inst.ErrorMsg = msg
	inst.UpdatedAt = time.Now()
	return nil
}

// GetInstance returns a copy of the instance by id.
func (r *Registry) GetInstance(instanceID string) (*HandInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	cp := *inst
	return &cp, nil
}

// ListInstances returns all instances.
func (r *Registry) ListInstances() []HandInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HandInstance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, *inst)
	}
	return out
}

// FindByAgent returns the instance bound to agentID, if any.
func (r *Registry) FindByAgent(agentID string) (*HandInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, inst := range r.instances {
		if inst.AgentID != nil && *inst.AgentID == agentID {
			cp := *inst
			return &cp, true
		}
	}
	return nil, false
}
