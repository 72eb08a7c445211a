package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLLM struct {
	reply string
	err   error
}

func (f fixedLLM) Complete(context.Context, string) (string, error) {
	return f.reply, f.err
}

func TestParseMentions(t *testing.T) {
	assert.Equal(t, []string{"Door Controller", "Door Sensor", "ECU 1"},
		ParseMentions(`"Door Controller", 'Door Sensor', door controller,
- ECU 1`))
	assert.Empty(t, ParseMentions(" , none, "))
	assert.Equal(t, []string{"车门控制器", "传感器"}, ParseMentions("车门控制器，传感器"))
}

func TestRecognizer_Mentions(t *testing.T) {
	r := NewRecognizer(fixedLLM{reply: "Door Controller, Door Sensor"})
	got, err := r.Mentions(context.Background(), "What does the door controller monitor?")
	require.NoError(t, err)
	assert.Equal(t, []string{"Door Controller", "Door Sensor"}, got)

	got, err = r.Mentions(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = NewRecognizer(fixedLLM{err: errors.New("down")}).Mentions(context.Background(), "q")
	assert.Error(t, err)
}

func TestAnswerPrompt(t *testing.T) {
	p := AnswerPrompt("What monitors the sensor?", "[1] (graph) Door Controller -[MONITORS]-> Door Sensor")
	assert.Contains(t, p, "Question: What monitors the sensor?")
	assert.Contains(t, p, "[1] (graph) Door Controller")
}
