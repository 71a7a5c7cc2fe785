package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullVersion(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "1.2.0", ""
	assert.Equal(t, "1.2.0", FullVersion())
	assert.False(t, IsDev())

	Commit = "abc1234"
	assert.Equal(t, "1.2.0 (abc1234)", FullVersion())
	assert.Equal(t, "davi-nfc-sheet/1.2.0", UserAgent())
}

func TestBuildInfoMentionsName(t *testing.T) {
	info := BuildInfo()
	assert.Contains(t, info, Name)
	assert.Contains(t, info, "OS/Arch")
}
