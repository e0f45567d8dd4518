package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// ErrPlanNotFound is returned when a plan id does not exist.
var ErrPlanNotFound = errors.New("plan not found")

// PlanStore keeps the plan collection in a single JSON file, written with
// the same temp+fsync+backup+rename discipline as the snapshot store.
type PlanStore struct {
	mu   sync.Mutex
	path string
}

// NewPlanStore creates a PlanStore backed by the given file path.
func NewPlanStore(path string) *PlanStore {
	return &PlanStore{path: path}
}

type planFile struct {
	Plans []*Plan `json:"plans"`
}

// List returns all plans sorted by creation time.
func (s *PlanStore) List() ([]*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pf, err := s.load()
	if err != nil {
		return nil, err
	}
	return pf.Plans, nil
}

// Get returns the plan with the given id, or ErrPlanNotFound.
func (s *PlanStore) Get(id string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pf, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, p := range pf.Plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrPlanNotFound
}

// Put inserts or replaces a plan by id.
func (s *PlanStore) Put(plan *Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pf, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	plan.UpdatedAt = now
	replaced := false
	for i, p := range pf.Plans {
		if p.ID == plan.ID {
			plan.CreatedAt = p.CreatedAt
			pf.Plans[i] = plan
			replaced = true
			break
		}
	}
	if !replaced {
		if plan.CreatedAt.IsZero() {
			plan.CreatedAt = now
		}
		pf.Plans = append(pf.Plans, plan)
	}
	sort.Slice(pf.Plans, func(i, j int) bool { return pf.Plans[i].CreatedAt.Before(pf.Plans[j].CreatedAt) })
	return s.save(pf)
}

// Delete removes a plan by id.
func (s *PlanStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pf, err := s.load()
	if err != nil {
		return err
	}
	for i, p := range pf.Plans {
		if p.ID == id {
			pf.Plans = append(pf.Plans[:i], pf.Plans[i+1:]...)
			return s.save(pf)
		}
	}
	return ErrPlanNotFound
}

func (s *PlanStore) load() (*planFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &planFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var pf planFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decoding plan file: %w", err)
	}
	return &pf, nil
}

func (s *PlanStore) save(pf *planFile) error {
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan file: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp plan file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp plan file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temp plan file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp plan file: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.path+".bak"); err != nil {
			return fmt.Errorf("backing up plan file: %w", err)
		}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing plan file: %w", err)
	}
	return nil
}
