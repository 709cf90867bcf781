// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extension

import (
	"fmt"
	"strings"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/jws"
)

// Level is a JAdES baseline signature level.
type Level int

const (
	// LevelB is a signature without augmentation.
	LevelB Level = iota + 1

	// LevelT adds a signature timestamp.
	LevelT

	// LevelLT adds the certificates and revocation data needed to validate
	// the signature later.
	LevelLT

	// LevelLTA adds archive timestamps.
	LevelLTA
)

var levelNames = map[Level]string{
	LevelB:   "B",
	LevelT:   "T",
	LevelLT:  "LT",
	LevelLTA: "LTA",
}

// String returns the short name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ProfileName returns the ETSI profile name, e.g. "JAdES-BASELINE-LTA".
func (l Level) ProfileName() string {
	return "JAdES-BASELINE-" + l.String()
}

// ParseLevel parses a short level name or a profile name, case-insensitive.
func ParseLevel(name string) (Level, error) {
	short := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "JADES-BASELINE-")
	for l, n := range levelNames {
		if n == short {
			return l, nil
		}
	}
	return 0, errdef.Unsupported(errdef.RuleLevel, "unknown signature level %q", name)
}

func (l Level) validate() error {
	if _, ok := levelNames[l]; !ok {
		return errdef.Unsupported(errdef.RuleLevel, "unknown signature level %d", int(l))
	}
	return nil
}

// LevelOf derives the level of e from its etsiU ledger. It is computed on
// every call.
func LevelOf(e *jws.Envelope) (Level, error) {
	l, err := e.Ledger()
	if err != nil {
		return 0, err
	}
	return levelOf(l), nil
}

func levelOf(l *etsiu.Ledger) Level {
	switch {
	case l.Contains(etsiu.TagArcTst):
		return LevelLTA
	case l.Contains(etsiu.TagSigTst) && hasValidationData(l):
		return LevelLT
	case l.Contains(etsiu.TagSigTst):
		return LevelT
	}
	return LevelB
}

func hasValidationData(l *etsiu.Ledger) bool {
	return l.Contains(etsiu.TagXVals) || l.Contains(etsiu.TagRVals)
}
