// Package source implements the Source Resolver & Trust Gate (spec §2
// component A, §4.8): classifying a recipe/template reference, rejecting
// anything that looks like a shell injection attempt, consulting the
// trust store before fetching anything remote, and dispatching to the
// right fetch backend. Every fetch goes through library calls only —
// never a shell (spec §4.8 "Security validation").
package source

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a reference by the rules of spec §4.8 ("first match
// wins").
type Kind string

const (
	KindLocal   Kind = "local"
	KindGit     Kind = "git"
	KindHTTP    Kind = "http"
	KindPackage Kind = "package"
)

var explicitPrefixes = map[string]Kind{
	"file:":      KindLocal,
	"npm:":       KindPackage,
	"jsr:":       KindPackage,
	"github:":    KindGit,
	"gitlab:":    KindGit,
	"bitbucket:": KindGit,
	"git+":       KindGit,
}

// shellMetacharacters is spec §4.8's exact rejection set: `; | ` $ ( ) { }
// ! > <`.
var shellMetacharacters = regexp.MustCompile(`[;|` + "`" + `$(){}!><]`)

// shorthandPattern matches `user/repo[#branch|@tag]` (spec §4.8 rule 6).
var shorthandPattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+(#[\w./-]+|@[\w./-]+)?$`)

// Classify identifies ref's Kind using spec §4.8's ordered rules
// ("first match wins") and rejects shell metacharacters before anything
// else, per spec §8 property 8 ("rejected... before any fetch is
// attempted").
func Classify(ref string) (Kind, error) {
	if err := SecurityCheck(ref); err != nil {
		return "", err
	}

	// 1. Explicit prefix.
	for prefix, kind := range explicitPrefixes {
		if strings.HasPrefix(ref, prefix) {
			return kind, nil
		}
	}

	// 2. `.git` suffix or ssh://git@ / git:// scheme.
	if strings.HasSuffix(ref, ".git") || strings.HasPrefix(ref, "ssh://git@") || strings.HasPrefix(ref, "git://") {
		return KindGit, nil
	}

	// 3. Other http(s):// -> tarball URL.
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return KindHTTP, nil
	}

	// 4. Windows path.
	if isWindowsPath(ref) {
		return KindLocal, nil
	}

	// 5. Unix path.
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") || strings.HasPrefix(ref, "~/") || ref == "." || ref == ".." {
		return KindLocal, nil
	}

	// 6. user/repo[#branch|@tag] shorthand -> github.
	if shorthandPattern.MatchString(ref) {
		return KindGit, nil
	}

	// 7. Otherwise -> package-registry reference.
	return KindPackage, nil
}

func isWindowsPath(ref string) bool {
	if len(ref) >= 2 && ref[1] == ':' && isLetter(ref[0]) {
		return true
	}
	if strings.HasPrefix(ref, `\\`) || strings.HasPrefix(ref, `.\`) || strings.HasPrefix(ref, `..\`) {
		return true
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// SecurityCheck rejects ref if it contains any of spec §4.8's shell
// metacharacters, independent of classification outcome.
func SecurityCheck(ref string) error {
	if shellMetacharacters.MatchString(ref) {
		return &RejectedError{Ref: ref}
	}
	return nil
}

// RejectedError reports a reference rejected by SecurityCheck.
type RejectedError struct{ Ref string }

func (e *RejectedError) Error() string {
	return fmt.Sprintf("reference contains a rejected shell metacharacter: %q", e.Ref)
}
