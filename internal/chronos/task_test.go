package chronos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBool(t *testing.T) {
	assert.Nil(t, FromBool(nil))

	step := FromBool(func() bool { return true })
	assert.Equal(t, Continue, step())

	step = FromBool(func() bool { return false })
	assert.Equal(t, Done, step())
}

func TestParseQueuePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want QueuePolicy
		ok   bool
	}{
		{"", QueueIgnore, true},
		{"ignore", QueueIgnore, true},
		{"promote", QueuePromote, true},
		{"discard", QueueDiscard, true},
		{"drop", QueueIgnore, false},
	}
	for _, tt := range tests {
		got, ok := ParseQueuePolicy(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "promote", QueuePromote.String())
}

func TestSelector_Matches(t *testing.T) {
	a := &task{ref: 1, name: "A"}
	b := &task{ref: 2, name: "B"}

	assert.True(t, ByName("A").matches(a))
	assert.False(t, ByName("A").matches(b))
	assert.True(t, ByRef(2).matches(b))
	assert.False(t, ByRef(2).matches(a))
	assert.True(t, AllTasks().matches(a))
	assert.False(t, Selector{}.matches(a))
}

func TestSchedulerError_Format(t *testing.T) {
	assert.Equal(t, "INVALID_TASK: step is not a function (task=draw)",
		NewInvalidTaskError("draw").Error())
	assert.Equal(t, "UNKNOWN_PARENT: parent task is not attached (task=edges, parent=nodes)",
		NewUnknownParentError("edges", "nodes").Error())
	assert.False(t, IsInvalidTaskError(nil))
	assert.False(t, IsUnknownParentError(NewInvalidTaskError("x")))
}
