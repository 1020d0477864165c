package checks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/CalvinSturm/LocalAgent/internal/canonjson"
)

const (
	CodeDiscoveryIOError   = "CHECK_DISCOVERY_IO_ERROR"
	CodeFileNotUTF8        = "CHECK_FILE_NOT_UTF8"
	CodeFrontmatterMissing = "CHECK_FRONTMATTER_MISSING"
	CodeYAMLParseError     = "CHECK_YAML_PARSE_ERROR"
	CodeSchemaInvalid      = "CHECK_SCHEMA_INVALID"
	CodeDuplicateName      = "CHECK_DUPLICATE_NAME"
)

// Loaded is one successfully parsed, validated, and hashed check file.
type Loaded struct {
	Path               string
	Name               string
	Description        string
	Required           bool
	Body               string
	FileBytesHashHex   string
	FrontmatterHashHex string
	CheckHashHex       string
	Frontmatter        Frontmatter
}

// LoadError names the check file (when known) and a stable code a
// caller can branch on, alongside a human-readable message.
type LoadError struct {
	Path    string
	Code    string
	Message string
}

func (e LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

// LoadResult separates successfully loaded checks from load errors so a
// caller can decide whether any error is fatal to the run.
type LoadResult struct {
	Checks []Loaded
	Errors []LoadError
}

// Load discovers every .md file under dir (default
// <root>/.localagent/checks when dir is empty), parses its frontmatter,
// and returns the checks it found plus any per-file errors. Checks are
// returned in directory-walk order, which is deterministic for a fixed
// file tree — two loads of the same tree produce identical ordering and
// hashes.
func Load(root string, dir string) LoadResult {
	workdir := root
	if abs, err := filepath.Abs(root); err == nil {
		workdir = abs
	}
	checksDir := dir
	if checksDir == "" {
		checksDir = filepath.Join(workdir, ".localagent", "checks")
	} else if !filepath.IsAbs(checksDir) {
		checksDir = filepath.Join(workdir, checksDir)
	}

	var out LoadResult
	files, err := discoverCheckFiles(workdir, checksDir)
	if err != nil {
		out.Errors = append(out.Errors, LoadError{
			Path:    relPath(checksDir, workdir),
			Code:    CodeDiscoveryIOError,
			Message: err.Error(),
		})
		return out
	}

	seen := map[string]string{}
	for _, file := range files {
		loaded, lerr := loadOne(workdir, file)
		if lerr != nil {
			out.Errors = append(out.Errors, *lerr)
			continue
		}
		if prevPath, dup := seen[loaded.Name]; dup {
			out.Errors = append(out.Errors,
				LoadError{Path: loaded.Path, Code: CodeDuplicateName, Message: fmt.Sprintf("duplicate check name %q", loaded.Name)},
				LoadError{Path: prevPath, Code: CodeDuplicateName, Message: fmt.Sprintf("duplicate check name %q", loaded.Name)},
			)
			continue
		}
		seen[loaded.Name] = loaded.Path
		out.Checks = append(out.Checks, loaded)
	}
	return out
}

func discoverCheckFiles(root, dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ".md" {
			return nil
		}
		rel := relPath(path, root)
		if strings.HasPrefix(rel, "/") || strings.Contains(rel, "..") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func loadOne(root, path string) (*Loaded, *LoadError) {
	rel := relPath(path, root)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: rel, Code: CodeDiscoveryIOError, Message: err.Error()}
	}
	fileHash := sha256Hex(raw)

	if !utf8.Valid(raw) {
		return nil, &LoadError{Path: rel, Code: CodeFileNotUTF8, Message: "check file is not valid UTF-8"}
	}
	text := string(raw)

	fmText, bodyText, ok := splitFrontmatter(text)
	if !ok {
		return nil, &LoadError{Path: rel, Code: CodeFrontmatterMissing, Message: "missing YAML frontmatter delimited by ---"}
	}

	var fm Frontmatter
	dec := yaml.NewDecoder(strings.NewReader(fmText))
	dec.KnownFields(true)
	if err := dec.Decode(&fm); err != nil {
		return nil, &LoadError{Path: rel, Code: CodeYAMLParseError, Message: err.Error()}
	}
	if err := ValidateFrontmatter(fm); err != nil {
		return nil, &LoadError{Path: rel, Code: CodeSchemaInvalid, Message: err.Error()}
	}

	body := normalizeBody(bodyText)
	canonicalFM, err := canonicalFrontmatterJSON(fm)
	if err != nil {
		return nil, &LoadError{Path: rel, Code: CodeYAMLParseError, Message: err.Error()}
	}
	frontmatterHash := sha256Hex([]byte(canonicalFM))
	checkHash := sha256Hex([]byte(canonicalFM + "\n---\n" + body))

	return &Loaded{
		Path:               rel,
		Name:               fm.Name,
		Description:        fm.Description,
		Required:           fm.Required,
		Body:               body,
		FileBytesHashHex:   fileHash,
		FrontmatterHashHex: frontmatterHash,
		CheckHashHex:       checkHash,
		Frontmatter:        fm,
	}, nil
}

// splitFrontmatter finds a "---\n ... \n---\n" header at the start of
// input, accepting both LF and CRLF line endings.
func splitFrontmatter(input string) (fm, body string, ok bool) {
	rest, ok := cutPrefixAny(input, "---\n", "---\r\n")
	if !ok {
		return "", "", false
	}
	idx := strings.Index(rest, "\n---\n")
	crlfIdx := strings.Index(rest, "\r\n---\r\n")
	sep := "\n---\n"
	if idx == -1 || (crlfIdx != -1 && crlfIdx < idx) {
		idx = crlfIdx
		sep = "\r\n---\r\n"
	}
	if idx == -1 {
		return "", "", false
	}
	fm = rest[:idx]
	body = rest[idx+len(sep):]
	return fm, body, true
}

func cutPrefixAny(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return s[len(p):], true
		}
	}
	return s, false
}

func normalizeBody(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// canonicalFrontmatterJSON serializes only the fields that define a
// check's identity, via canonjson so the hash is stable across runs.
func canonicalFrontmatterJSON(fm Frontmatter) (string, error) {
	b, err := canonjson.Marshal(fm)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func relPath(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}
