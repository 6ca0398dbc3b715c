/*
Package bootstrap provisions the long-lived bearer credential in a perch
configuration artifact. Provisioning is idempotent and crash safe: every run
backs up the artifact first, an existing token is always preserved verbatim,
and the artifact is rewritten atomically so an interrupted run never leaves
a partial file behind.

Provisioning is a single-operator procedure. Two concurrent runs against the
same artifact cannot corrupt it, but both may generate a first token; callers
must serialize invocations.
*/
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/jasper"
	"github.com/netperch/perch/util"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

const (
	runtimeSectionName = "runtime"
	tokenFieldName     = "bearer_token"

	// 32 bytes of entropy, hex encoded.
	tokenByteLength = 32
)

// Options control a provision run.
type Options struct {
	// Path of the configuration artifact. The artifact must exist;
	// provisioning updates a deployed configuration, it does not create
	// one.
	Path string

	// Token is a candidate credential. It is used only when the artifact
	// has no token yet; an existing token is never replaced.
	Token string

	// SkipRestart disables the post-write restart of the dependent
	// service. The restart is best effort either way: a restart failure
	// never rolls back the committed artifact change.
	SkipRestart bool

	// RestartArgs overrides the restart command. Defaults to bringing
	// the artifact directory's compose stack up.
	RestartArgs []string
}

func (opts *Options) restartArgs() []string {
	if len(opts.RestartArgs) > 0 {
		return opts.RestartArgs
	}
	return []string{"docker", "compose", "up", "-d"}
}

// Result reports the outcome of a provision run.
type Result struct {
	// Token is the effective credential after the run, whether preserved
	// or newly written.
	Token string

	// Preserved is true when the artifact already held a token and the
	// run left it untouched.
	Preserved bool

	// BackupPath names the timestamped copy taken before any mutation.
	BackupPath string
}

type artifactNotFoundError struct {
	path string
}

func (e *artifactNotFoundError) Error() string {
	return errors.Errorf("configuration artifact '%s' does not exist", e.path).Error()
}

func IsArtifactNotFound(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*artifactNotFoundError)
	return ok
}

// Provision runs the provisioning sequence: back up the artifact, detect an
// existing token, preserve it or generate one, write the artifact
// atomically, and optionally restart the dependent service.
func Provision(ctx context.Context, opts Options) (*Result, error) {
	if opts.Path == "" {
		return nil, errors.New("must specify an artifact path")
	}
	if !util.FileExists(opts.Path) {
		return nil, &artifactNotFoundError{path: opts.Path}
	}

	backupPath, err := util.BackupFile(opts.Path)
	if err != nil {
		return nil, errors.Wrap(err, "problem backing up artifact")
	}

	doc, err := readArtifact(opts.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result := &Result{BackupPath: backupPath}

	existing, present, err := detectToken(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid artifact %s", opts.Path)
	}

	if present {
		// Never clobber a live credential: rotation is a deliberate
		// external action, not a side effect of reprovisioning. The
		// supplied candidate, if any, is ignored and the artifact is
		// left byte-for-byte unchanged.
		result.Token = existing
		result.Preserved = true

		grip.InfoWhen(opts.Token != "" && opts.Token != existing, message.Fields{
			"message": "artifact already holds a token, ignoring the supplied one",
			"path":    opts.Path,
		})
	} else {
		result.Token = opts.Token
		if result.Token == "" {
			result.Token, err = generateToken()
			if err != nil {
				return nil, errors.Wrap(err, "problem generating token")
			}
		}

		doc, err = setToken(doc, result.Token)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid artifact %s", opts.Path)
		}
		if err := writeArtifact(opts.Path, doc); err != nil {
			return nil, errors.Wrap(err, "problem writing artifact")
		}
	}

	if !opts.SkipRestart {
		restartService(ctx, opts)
	}

	return result, nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.WithStack(err)
	}

	return hex.EncodeToString(buf), nil
}

// readArtifact parses the artifact into an order-preserving document so
// every section the provisioner does not understand survives the
// parse-mutate-serialize cycle unchanged.
func readArtifact(path string) (yaml.MapSlice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "problem reading artifact %s", path)
	}

	doc := yaml.MapSlice{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "problem parsing artifact %s", path)
	}

	return doc, nil
}

func writeArtifact(path string, doc yaml.MapSlice) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "problem serializing artifact")
	}

	perm := os.FileMode(0600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	return errors.WithStack(util.WriteFileAtomic(path, data, perm))
}

// detectToken reports the artifact's existing credential. Any non-empty
// value counts as present, even one of an unexpected type, so a hand-edited
// token is never overwritten.
func detectToken(doc yaml.MapSlice) (string, bool, error) {
	runtime, _, err := findSection(doc, runtimeSectionName)
	if err != nil {
		return "", false, err
	}

	for _, item := range runtime {
		if key, ok := item.Key.(string); ok && key == tokenFieldName {
			if item.Value == nil {
				return "", false, nil
			}
			if token, ok := item.Value.(string); ok {
				return token, token != "", nil
			}
			return fmt.Sprint(item.Value), true, nil
		}
	}

	return "", false, nil
}

// setToken updates only the credential field, creating the runtime section
// or the field when absent and leaving everything else in place.
func setToken(doc yaml.MapSlice, token string) (yaml.MapSlice, error) {
	runtime, sectionIdx, err := findSection(doc, runtimeSectionName)
	if err != nil {
		return nil, err
	}

	fieldIdx := -1
	for i, item := range runtime {
		if key, ok := item.Key.(string); ok && key == tokenFieldName {
			fieldIdx = i
			break
		}
	}
	if fieldIdx >= 0 {
		runtime[fieldIdx].Value = token
	} else {
		runtime = append(runtime, yaml.MapItem{Key: tokenFieldName, Value: token})
	}

	if sectionIdx >= 0 {
		doc[sectionIdx].Value = runtime
	} else {
		doc = append(doc, yaml.MapItem{Key: runtimeSectionName, Value: runtime})
	}

	return doc, nil
}

func findSection(doc yaml.MapSlice, name string) (yaml.MapSlice, int, error) {
	for i, item := range doc {
		key, ok := item.Key.(string)
		if !ok || key != name {
			continue
		}
		if item.Value == nil {
			return yaml.MapSlice{}, i, nil
		}
		if section, ok := item.Value.(yaml.MapSlice); ok {
			return section, i, nil
		}
		return nil, -1, errors.Errorf("'%s' section must be a mapping", name)
	}

	return yaml.MapSlice{}, -1, nil
}

// restartService brings the dependent service up so it reads the new
// artifact. Failures are logged and swallowed; the artifact change stands.
func restartService(ctx context.Context, opts Options) {
	args := opts.restartArgs()

	err := jasper.NewCommand().
		Add(args).
		Directory(filepath.Dir(opts.Path)).
		SetCombinedSender(level.Debug, grip.GetSender()).
		Run(ctx)
	grip.Warning(message.WrapError(err, message.Fields{
		"message": "problem restarting dependent service, the artifact change stands",
		"args":    args,
		"path":    opts.Path,
	}))
}
