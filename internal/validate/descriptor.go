package validate

import (
	"net/url"
	"strings"

	"patchstack/internal/glob"
	"patchstack/internal/jsonval"
	"patchstack/internal/patch"
)

// PatchDescriptor checks a parsed patch.js. Loading tolerates all of these
// problems by ignoring the offending key; validation reports them so patch
// authors notice.
//
//   - The document is an object.
//   - id, title, motd and motd_title are strings.
//   - servers, ignore and dependencies are arrays of strings; servers are
//     absolute http(s) URLs, ignore entries are non-empty wildcards and
//     dependencies are non-empty "patch" or "repo/patch" references.
//   - motd_type is a non-negative integer, update a boolean, fonts an object.
func PatchDescriptor(v jsonval.Value) error {
	var errs errlist
	js, ok := jsonval.AsObject(v)
	if !ok {
		errs.add("patch.js must be an object, got %s", kindOf(v))
		return errs.err()
	}
	for _, k := range []string{"id", "title", "motd", "motd_title"} {
		checkString(&errs, js, k)
	}
	if id, ok := js.GetString("id"); ok && strings.ContainsAny(id, `/\`) {
		errs.add("id: must not contain slashes (got %q)", id)
	}
	for i, s := range stringArray(&errs, js, "servers") {
		checkURL(&errs, "servers", i, s)
	}
	for i, s := range stringArray(&errs, js, "ignore") {
		if strings.TrimSpace(glob.Normalize(s)) == "" {
			errs.add("ignore[%d]: empty wildcard", i)
		}
	}
	for i, s := range stringArray(&errs, js, "dependencies") {
		d := patch.ParseDependency(s)
		if d.IsZero() || d.PatchID == "" || (d.HasRepo && d.RepoID == "") {
			errs.add("dependencies[%d]: invalid reference %q", i, s)
		}
	}
	if mv, ok := js.Get("motd_type"); ok {
		n, isNum := mv.(jsonval.Number)
		i, isInt := n.Int()
		if !isNum || !isInt || i < 0 {
			errs.add("motd_type: must be a non-negative integer")
		}
	}
	if uv, ok := js.Get("update"); ok {
		if _, isBool := uv.(jsonval.Bool); !isBool {
			errs.add("update: must be a boolean, got %s", kindOf(uv))
		}
	}
	if fv, ok := js.Get("fonts"); ok && !jsonval.IsObject(fv) {
		errs.add("fonts: must be an object, got %s", kindOf(fv))
	}
	return errs.err()
}

// RepoDescriptor checks a parsed repo.js:
//
//   - The document is an object with a non-empty string id.
//   - title and contact are strings.
//   - servers and neighbors are arrays of absolute http(s) URLs.
//   - patches is an object whose values are a title string or an object
//     with an optional string title and string array flags.
func RepoDescriptor(v jsonval.Value) error {
	var errs errlist
	js, ok := jsonval.AsObject(v)
	if !ok {
		errs.add("repo.js must be an object, got %s", kindOf(v))
		return errs.err()
	}
	if id, ok := js.GetString("id"); !ok || strings.TrimSpace(id) == "" {
		errs.add("id: must be a non-empty string")
	}
	checkString(&errs, js, "title")
	checkString(&errs, js, "contact")
	for _, key := range []string{"servers", "neighbors"} {
		for i, s := range stringArray(&errs, js, key) {
			checkURL(&errs, key, i, s)
		}
	}
	pv, ok := js.Get("patches")
	if !ok {
		return errs.err()
	}
	patches, ok := jsonval.AsObject(pv)
	if !ok {
		errs.add("patches: must be an object, got %s", kindOf(pv))
		return errs.err()
	}
	patches.Range(func(id string, ev jsonval.Value) bool {
		prefix := "patches." + id
		if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) {
			errs.add("%s: invalid patch id", prefix)
		}
		switch t := ev.(type) {
		case jsonval.String:
		case *jsonval.Object:
			checkString(&errs, t, "title")
			stringArray(&errs, t, "flags", prefix)
		default:
			errs.add("%s: must be a string or an object, got %s", prefix, kindOf(ev))
		}
		return true
	})
	return errs.err()
}

func kindOf(v jsonval.Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Kind().String()
}

func checkString(errs *errlist, js *jsonval.Object, key string) {
	v, ok := js.Get(key)
	if !ok {
		return
	}
	if _, isStr := v.(jsonval.String); !isStr {
		errs.add("%s: must be a string, got %s", key, kindOf(v))
	}
}

// stringArray returns the string elements of js[key], reporting any
// non-array value or non-string element. An optional prefix qualifies the
// key in messages.
func stringArray(errs *errlist, js *jsonval.Object, key string, prefix ...string) []string {
	name := key
	if len(prefix) > 0 {
		name = prefix[0] + "." + key
	}
	v, ok := js.Get(key)
	if !ok {
		return nil
	}
	arr, isArr := v.(jsonval.Array)
	if !isArr {
		errs.add("%s: must be an array, got %s", name, kindOf(v))
		return nil
	}
	out := make([]string, 0, len(arr))
	for i, el := range arr {
		s, isStr := el.(jsonval.String)
		if !isStr {
			errs.add("%s[%d]: must be a string, got %s", name, i, kindOf(el))
			continue
		}
		out = append(out, string(s))
	}
	return out
}

func checkURL(errs *errlist, key string, i int, s string) {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.add("%s[%d]: must be an absolute http(s) URL (got %q)", key, i, s)
	}
}
