// Package jsonfile implements the store.Driver interface over a pair of
// JSON files: one array of events and one map of per-event response buckets.
// Both files are fully rewritten on every save; the driver also migrates two
// historical on-disk shapes on load.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sorakado/offkai/store"
)

// Config names the backing files. WaitlistFile is only consulted while
// migrating the legacy responses shape.
type Config struct {
	EventsFile    string
	ResponsesFile string
	WaitlistFile  string
}

// Driver is the JSON file persistence driver.
type Driver struct {
	config Config
}

// NewDriver creates a driver over the configured files. The files do not
// need to exist yet; empty stubs are written on first load.
func NewDriver(config Config) (*Driver, error) {
	if config.EventsFile == "" || config.ResponsesFile == "" {
		return nil, errors.New("jsonfile: events and responses file paths are required")
	}
	return &Driver{config: config}, nil
}

// Close is a no-op; the driver holds no open handles between operations.
func (*Driver) Close() error {
	return nil
}

// LoadEvents reads the events file. Missing or empty file yields an empty
// cache (and a stub file); malformed JSON yields an empty cache without
// touching the file; malformed individual entries are skipped with a warning.
func (d *Driver) LoadEvents() ([]*store.Event, error) {
	raw, ok, err := readOrStub(d.config.EventsFile, []byte("[]"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		slog.Error("jsonfile: malformed events file, starting with empty cache",
			"file", d.config.EventsFile, "error", err)
		return nil, nil
	}

	events := make([]*store.Event, 0, len(entries))
	for _, entry := range entries {
		e, err := decodeEvent(entry)
		if err != nil {
			slog.Warn("jsonfile: skipping malformed event entry", "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// SaveEvents rewrites the events file.
func (d *Driver) SaveEvents(events []*store.Event) error {
	disk := make([]*diskEvent, 0, len(events))
	for _, e := range events {
		disk = append(disk, encodeEvent(e))
	}
	return writeJSON(d.config.EventsFile, disk)
}

// LoadResponses reads the responses file and migrates the legacy shape
// ({event: [registrations]} plus an optional sibling waitlist file) to the
// current one. Migration saves once; a subsequent load is a no-op.
func (d *Driver) LoadResponses() (map[string]*store.EventBucket, error) {
	raw, ok, err := readOrStub(d.config.ResponsesFile, []byte("{}"))
	if err != nil {
		return nil, err
	}
	responses := make(map[string]*store.EventBucket)
	if !ok {
		return responses, nil
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		slog.Error("jsonfile: malformed responses file, starting with empty cache",
			"file", d.config.ResponsesFile, "error", err)
		return responses, nil
	}

	migrated := false
	for name, value := range root {
		trimmed := bytes.TrimLeft(value, " \t\r\n")
		if len(trimmed) > 0 && trimmed[0] == '[' {
			// Legacy shape: a bare attendee list.
			b := &store.EventBucket{Attendees: decodeRegistrations(value, name)}
			responses[name] = b
			migrated = true
			continue
		}
		var bucket diskBucket
		if err := json.Unmarshal(value, &bucket); err != nil {
			slog.Warn("jsonfile: skipping malformed response bucket", "event", name, "error", err)
			continue
		}
		responses[name] = &store.EventBucket{
			Attendees: decodeDiskRegistrations(bucket.Attendees, name),
			Waitlist:  decodeDiskRegistrations(bucket.Waitlist, name),
		}
	}

	if migrated {
		d.mergeLegacyWaitlist(responses)
		if err := d.SaveResponses(responses); err != nil {
			return nil, errors.Wrap(err, "jsonfile: failed to save migrated responses")
		}
		slog.Info("jsonfile: migrated legacy responses format", "file", d.config.ResponsesFile)
	}
	return responses, nil
}

// mergeLegacyWaitlist folds entries of the sibling waitlist file into the
// waitlist arrays of the freshly migrated buckets.
func (d *Driver) mergeLegacyWaitlist(responses map[string]*store.EventBucket) {
	if d.config.WaitlistFile == "" {
		return
	}
	raw, err := os.ReadFile(d.config.WaitlistFile)
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		slog.Warn("jsonfile: malformed legacy waitlist file, ignoring",
			"file", d.config.WaitlistFile, "error", err)
		return
	}
	for name, value := range root {
		entries := decodeRegistrations(value, name)
		if len(entries) == 0 {
			continue
		}
		b, ok := responses[name]
		if !ok {
			b = &store.EventBucket{}
			responses[name] = b
		}
		b.Waitlist = append(b.Waitlist, entries...)
	}
}

// SaveResponses rewrites the responses file in the current format.
func (d *Driver) SaveResponses(responses map[string]*store.EventBucket) error {
	disk := make(map[string]*diskBucket, len(responses))
	for name, b := range responses {
		db := &diskBucket{
			Attendees: make([]*diskRegistration, 0, len(b.Attendees)),
			Waitlist:  make([]*diskRegistration, 0, len(b.Waitlist)),
		}
		for _, r := range b.Attendees {
			db.Attendees = append(db.Attendees, encodeRegistration(r))
		}
		for _, r := range b.Waitlist {
			db.Waitlist = append(db.Waitlist, encodeRegistration(r))
		}
		disk[name] = db
	}
	return writeJSON(d.config.ResponsesFile, disk)
}

// readOrStub returns the file content. A missing or empty file is replaced
// with the stub and reported as absent.
func readOrStub(path string, stub []byte) ([]byte, bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeAtomic(path, stub); writeErr != nil {
			return nil, false, errors.Wrapf(writeErr, "failed to create stub file %s", path)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read %s", path)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if writeErr := writeAtomic(path, stub); writeErr != nil {
			return nil, false, errors.Wrapf(writeErr, "failed to stub empty file %s", path)
		}
		return nil, false, nil
	}
	return raw, true, nil
}

// writeJSON marshals v pretty-printed without ASCII escaping and replaces
// the target file atomically.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

var _ store.Driver = (*Driver)(nil)
