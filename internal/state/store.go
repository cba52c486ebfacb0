package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"

	"github.com/Dicklesworthstone/dmux/internal/util"
)

// paneIDPrefix is prepended to the monotonic counter when minting pane ids.
const paneIDPrefix = "dmux-"

// ErrPaneExists is returned when adding a pane whose id or slug collides
// with a live pane.
var ErrPaneExists = errors.New("pane already exists")

// ErrWaitingWithoutOptions is returned when an update would leave a pane
// waiting with no options to choose from.
var ErrWaitingWithoutOptions = errors.New("waiting status requires options")

// configFile is the on-disk shape of .dmux/dmux.config.json.
type configFile struct {
	ProjectName string `json:"projectName"`
	Panes       []Pane `json:"panes"`
}

// Store is the single writer for the persisted pane list. Every mutation
// persists the full snapshot atomically and schedules a debounced broadcast
// to subscribers.
type Store struct {
	Logger *slog.Logger

	// LivePanes, when set, is consulted on Load to mark panes whose
	// terminal is gone as orphaned. It returns the terminal pane ids the
	// multiplexer currently knows about.
	LivePanes func(ctx context.Context) ([]string, error)

	// OnExternalReload, when set, runs after the watcher replaces the
	// in-memory state with a change written by another process.
	OnExternalReload func(ctx context.Context)

	projectRoot string
	projectName string
	path        string
	fileLock    *flock.Flock

	mu     sync.RWMutex
	panes  []Pane
	nextID int64

	subMu    sync.Mutex
	subs     map[int]chan struct{}
	subSeq   int
	debounce *time.Timer

	hashMu   sync.Mutex
	lastHash uint64
}

// NewStore creates a store rooted at the given project directory. Call Load
// before use.
func NewStore(projectRoot string) *Store {
	return &Store{
		projectRoot: projectRoot,
		projectName: ProjectNameFromRoot(projectRoot),
		path:        util.PaneConfigPath(projectRoot),
		fileLock:    flock.New(util.PaneConfigPath(projectRoot) + ".lock"),
		subs:        make(map[int]chan struct{}),
		nextID:      1,
	}
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ProjectRoot returns the project directory this store serves.
func (s *Store) ProjectRoot() string {
	return s.projectRoot
}

// ProjectName returns the display name derived from the project root.
func (s *Store) ProjectName() string {
	return s.projectName
}

// Path returns the config file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted pane list, tolerating a missing file, and marks
// panes whose terminal disappeared as orphaned.
func (s *Store) Load(ctx context.Context) error {
	if err := util.EnsureDir(util.ProjectDir(s.projectRoot)); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	panes, hash, err := s.readFile()
	if err != nil {
		return err
	}

	changed := false
	if s.LivePanes != nil {
		live, err := s.LivePanes(ctx)
		if err != nil {
			s.logger().Warn("could not list live panes, skipping orphan check", slog.Any("error", err))
		} else {
			changed = markOrphans(panes, live)
		}
	}

	s.mu.Lock()
	s.panes = panes
	s.nextID = maxPaneCounter(panes) + 1
	s.mu.Unlock()

	s.setLastHash(hash)

	if changed {
		if err := s.persist(); err != nil {
			return err
		}
	}
	s.scheduleBroadcast()
	return nil
}

// markOrphans clears the terminal id on panes whose terminal no longer
// exists. Returns true if any pane changed.
func markOrphans(panes []Pane, live []string) bool {
	liveSet := make(map[string]bool, len(live))
	for _, id := range live {
		liveSet[id] = true
	}
	changed := false
	for i := range panes {
		p := &panes[i]
		if p.TerminalPaneID == "" || liveSet[p.TerminalPaneID] {
			continue
		}
		p.TerminalPaneID = ""
		p.Orphaned = true
		p.AgentStatus = ""
		p.OptionsQuestion = ""
		p.Options = nil
		p.PotentialHarm = nil
		changed = true
	}
	return changed
}

// maxPaneCounter finds the highest counter already minted so restarts never
// reuse an id.
func maxPaneCounter(panes []Pane) int64 {
	var max int64
	for _, p := range panes {
		rest, ok := strings.CutPrefix(p.ID, paneIDPrefix)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(rest, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return max
}

// NewPaneID mints the next pane id.
func (s *Store) NewPaneID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("%s%d", paneIDPrefix, s.nextID)
	s.nextID++
	return id
}

// ListPanes returns a snapshot of all panes.
func (s *Store) ListPanes() []Pane {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pane, len(s.panes))
	for i := range s.panes {
		out[i] = s.panes[i].Clone()
	}
	return out
}

// Pane returns a copy of the pane with the given id.
func (s *Store) Pane(id string) (Pane, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.panes {
		if s.panes[i].ID == id {
			return s.panes[i].Clone(), true
		}
	}
	return Pane{}, false
}

// PaneBySlug returns a copy of the pane with the given slug.
func (s *Store) PaneBySlug(slug string) (Pane, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.panes {
		if s.panes[i].Slug == slug {
			return s.panes[i].Clone(), true
		}
	}
	return Pane{}, false
}

// SlugInUse reports whether a live (non-orphaned) pane already claims the
// slug.
func (s *Store) SlugInUse(slug string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.panes {
		if s.panes[i].Slug == slug && !s.panes[i].Orphaned {
			return true
		}
	}
	return false
}

// AddPane appends a new pane and persists.
func (s *Store) AddPane(p Pane) error {
	s.mu.Lock()
	for i := range s.panes {
		if s.panes[i].ID == p.ID {
			s.mu.Unlock()
			return fmt.Errorf("%w: id %s", ErrPaneExists, p.ID)
		}
		if s.panes[i].Slug == p.Slug && !s.panes[i].Orphaned {
			s.mu.Unlock()
			return fmt.Errorf("%w: slug %s", ErrPaneExists, p.Slug)
		}
	}
	s.panes = append(s.panes, p)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	s.scheduleBroadcast()
	return nil
}

// RemovePane deletes the pane with the given id and persists. Unknown ids
// are a no-op.
func (s *Store) RemovePane(id string) error {
	s.mu.Lock()
	removed := false
	for i := range s.panes {
		if s.panes[i].ID == id {
			s.panes = append(s.panes[:i], s.panes[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if !removed {
		return nil
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.scheduleBroadcast()
	return nil
}

// UpdatePane applies fn to the pane with the given id and persists.
func (s *Store) UpdatePane(id string, fn func(*Pane)) error {
	s.mu.Lock()
	found := false
	for i := range s.panes {
		if s.panes[i].ID == id {
			fn(&s.panes[i])
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("update pane: no pane with id %s", id)
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.scheduleBroadcast()
	return nil
}

// UpdatePaneStatus merges analyzer output into the pane. Unknown ids are
// ignored silently: the pane may have been closed while the analysis was in
// flight.
func (s *Store) UpdatePaneStatus(id string, update StatusUpdate) error {
	s.mu.Lock()
	var target *Pane
	for i := range s.panes {
		if s.panes[i].ID == id {
			target = &s.panes[i]
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return nil
	}

	merged := target.Clone()
	update.apply(&merged)
	if merged.AgentStatus == StatusWaiting && len(merged.Options) == 0 {
		s.mu.Unlock()
		return ErrWaitingWithoutOptions
	}
	*target = merged
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	s.scheduleBroadcast()
	return nil
}

// ApplyPanes replaces the whole pane list in one step.
func (s *Store) ApplyPanes(panes []Pane) error {
	s.mu.Lock()
	s.panes = panes
	if next := maxPaneCounter(panes) + 1; next > s.nextID {
		s.nextID = next
	}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	s.scheduleBroadcast()
	return nil
}

// Subscribe returns a channel that receives a signal after mutations, and a
// cancel function. Signals are debounced and coalesced; receivers should
// re-read ListPanes.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.subSeq
	s.subSeq++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// broadcastDebounce is how long mutations are coalesced before subscribers
// hear about them.
const broadcastDebounce = 100 * time.Millisecond

func (s *Store) scheduleBroadcast() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.debounce != nil {
		s.debounce.Reset(broadcastDebounce)
		return
	}
	s.debounce = time.AfterFunc(broadcastDebounce, s.fireBroadcast)
}

func (s *Store) fireBroadcast() {
	s.subMu.Lock()
	s.debounce = nil
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.subMu.Unlock()
}

// persist writes the current snapshot to disk under an exclusive file lock.
func (s *Store) persist() error {
	s.mu.RLock()
	doc := configFile{ProjectName: s.projectName, Panes: s.panes}
	data, err := json.MarshalIndent(doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode pane config: %w", err)
	}
	data = append(data, '\n')

	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock pane config: %w", err)
	}
	defer s.fileLock.Unlock()

	if err := util.AtomicWriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write pane config: %w", err)
	}
	s.setLastHash(xxhash.Sum64(data))
	return nil
}

// readFile loads and parses the config file under a shared lock. A missing
// file yields an empty list.
func (s *Store) readFile() ([]Pane, uint64, error) {
	if err := s.fileLock.RLock(); err != nil {
		return nil, 0, fmt.Errorf("lock pane config: %w", err)
	}
	data, err := os.ReadFile(s.path)
	unlockErr := s.fileLock.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read pane config: %w", err)
	}
	if unlockErr != nil {
		return nil, 0, fmt.Errorf("unlock pane config: %w", unlockErr)
	}

	var doc configFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("parse pane config %s: %w", s.path, err)
	}
	return doc.Panes, xxhash.Sum64(data), nil
}

func (s *Store) setLastHash(h uint64) {
	s.hashMu.Lock()
	s.lastHash = h
	s.hashMu.Unlock()
}

func (s *Store) sameAsLastWrite(h uint64) bool {
	s.hashMu.Lock()
	defer s.hashMu.Unlock()
	return h == s.lastHash
}

// reloadFromDisk picks up a change written by another process. Content
// matching our own last write is skipped so the watcher does not echo.
func (s *Store) reloadFromDisk(ctx context.Context) {
	panes, hash, err := s.readFile()
	if err != nil {
		s.logger().Warn("reload pane config failed", slog.Any("error", err))
		return
	}
	if hash != 0 && s.sameAsLastWrite(hash) {
		return
	}

	s.mu.Lock()
	s.panes = panes
	if next := maxPaneCounter(panes) + 1; next > s.nextID {
		s.nextID = next
	}
	s.mu.Unlock()

	s.setLastHash(hash)
	s.logger().Debug("pane config reloaded from disk", slog.Int("panes", len(panes)))
	s.scheduleBroadcast()

	if s.OnExternalReload != nil {
		s.OnExternalReload(ctx)
	}
}
