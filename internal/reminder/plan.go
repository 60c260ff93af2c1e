package reminder

import (
	"hash/fnv"
	"strings"
	"time"

	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/records"
)

// KeyPrefix prefixes every per-task reminder job key.
const KeyPrefix = "reminder:"

// Payload keys of reminder jobs.
const (
	payloadTaskID     = "task_id"
	payloadReminderAt = "reminder_at"
)

// KeyFor returns the job key of the reminder for taskID.
func KeyFor(taskID string) cron.Key {
	return cron.Key(KeyPrefix + taskID)
}

func taskIDFromKey(key cron.Key) string {
	id, _ := strings.CutPrefix(string(key), KeyPrefix)
	return id
}

// EffectKind is what the coordinator does with one planned effect.
type EffectKind string

// Effect kinds.
const (
	EffectSubmit EffectKind = "submit"
	EffectCancel EffectKind = "cancel"
	EffectSkip   EffectKind = "skip"
)

// Effect is one step decided by Plan.
type Effect struct {
	Kind       EffectKind
	Key        cron.Key
	Definition cron.Definition // EffectSubmit only
	Reason     string
}

// Plan decides what a task write means for its reminder job. It has no side
// effects.
//
// A task without a reminder, or a completed task, cancels the job. A
// reminder whose time is not in the future cancels any older job for the
// task and is otherwise skipped. Everything else replaces the job with a
// one-shot firing at ReminderAt.
func Plan(task records.Task, now time.Time) []Effect {
	key := KeyFor(task.ID)

	switch {
	case !task.HasReminder():
		return []Effect{{Kind: EffectCancel, Key: key, Reason: "no reminder time"}}
	case task.Completed:
		return []Effect{{Kind: EffectCancel, Key: key, Reason: "task completed"}}
	}

	if !task.ReminderAt.After(now) {
		return []Effect{
			{Kind: EffectCancel, Key: key, Reason: "reminder time has passed"},
			{Kind: EffectSkip, Key: key, Reason: "reminder time has passed"},
		}
	}

	return []Effect{{
		Kind: EffectSubmit,
		Key:  key,
		Definition: cron.Definition{
			Key:       key,
			Kind:      cron.OneShot,
			Policy:    cron.Replace,
			NotBefore: task.ReminderAt,
			Payload: map[string]string{
				payloadTaskID:     task.ID,
				payloadReminderAt: task.ReminderAt.UTC().Format(time.RFC3339Nano),
			},
		},
	}}
}

// Notification IDs 1..999 are reserved for aggregate notifications.
const (
	overdueNotificationID = 1
	summaryNotificationID = 2
	firstTaskID           = 1000
)

// NotificationID maps a task ID to a stable positive notification ID.
func NotificationID(taskID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(taskID))
	return firstTaskID + int(h.Sum32()%(1<<31-firstTaskID))
}
