package activation

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/normanking/cortexvoice/internal/scheduler"
)

// Fixed spoken replies.
const (
	ReplyNotHeard = "Sorry, I couldn't make that out."
)

// ResponsePool holds the acknowledgements spoken on wake.
type ResponsePool struct {
	// Introduction is used on the very first wake; {name} is replaced with
	// the assistant's name.
	Introduction []string
	// Acknowledge is used on every later wake.
	Acknowledge []string
}

// DefaultResponsePool returns the production pool.
func DefaultResponsePool() ResponsePool {
	return ResponsePool{
		Introduction: []string{
			"Hi, I'm {name}. What can I assist with today?",
			"Hello! I'm {name}. How can I help you?",
			"Hey there, I'm {name}. What do you need?",
		},
		Acknowledge: []string{
			"Yes?",
			"I'm listening.",
			"Go ahead.",
			"What's up?",
			"How can I help?",
		},
	}
}

func (p ResponsePool) pick(first bool, name string, intn func(int) int) string {
	pool := p.Acknowledge
	if first && len(p.Introduction) > 0 {
		pool = p.Introduction
	}
	if len(pool) == 0 {
		return "Yes?"
	}
	if intn == nil {
		intn = rand.Intn
	}
	return strings.ReplaceAll(pool[intn(len(pool))], "{name}", name)
}

// Announcement is the spoken text for a triggered task.
func Announcement(t scheduler.Task) string {
	switch t.Kind {
	case scheduler.KindAlarm:
		return fmt.Sprintf("Alarm! It's %s.", t.DueAt.Format("3:04 PM"))
	case scheduler.KindReminder:
		if t.Message == "" {
			return "Reminder!"
		}
		return "Reminder: " + t.Message
	case scheduler.KindTimer:
		if t.Message != "" {
			return "Timer finished: " + t.Message
		}
		return "Your timer is done!"
	default:
		return t.Message
	}
}
