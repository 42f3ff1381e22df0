// Package intent implements the rule-based intent and entity extractor.
//
// Text is normalized, then tested against an ordered rule table; the first
// rule whose pattern matches wins. The order of the table is part of the
// contract (see Rules) because several trigger sets overlap.
package intent

// Intent is a closed-set tag for what an utterance asks for.
type Intent string

// Family groups related intents. Follow-up detection compares families.
type Family string

const (
	FamilySystemControl Family = "system_control"
	FamilyTask          Family = "task"
	FamilyMessaging     Family = "messaging"
	FamilyKnowledge     Family = "knowledge"
	FamilyConversation  Family = "conversation"
	FamilyUnknown       Family = "unknown"
)

// System control
const (
	Shutdown   Intent = "shutdown"
	Restart    Intent = "restart"
	Lock       Intent = "lock"
	Sleep      Intent = "sleep"
	Screenshot Intent = "screenshot"
	SystemInfo Intent = "system_info"
	OpenApp    Intent = "open_app"
	CloseApp   Intent = "close_app"
	Volume     Intent = "volume"
	Brightness Intent = "brightness"
	TypeText   Intent = "type_text"
	PressKey   Intent = "press_key"
)

// Tasks
const (
	SetAlarm     Intent = "set_alarm"
	SetReminder  Intent = "set_reminder"
	SetTimer     Intent = "set_timer"
	CancelTask   Intent = "cancel_task"
	CreateTodo   Intent = "create_todo"
	ListTodos    Intent = "list_todos"
	CompleteTodo Intent = "complete_todo"
	DeleteTodo   Intent = "delete_todo"
)

// Messaging
const (
	SendEmail    Intent = "send_email"
	SendWhatsApp Intent = "send_whatsapp"
)

// Knowledge
const (
	Weather   Intent = "weather"
	Time      Intent = "time"
	Date      Intent = "date"
	News      Intent = "news"
	Search    Intent = "search"
	Wikipedia Intent = "wikipedia"
)

// Conversation
const (
	Greeting Intent = "greeting"
	Thanks   Intent = "thanks"
	Goodbye  Intent = "goodbye"
	Help     Intent = "help"
	Stop     Intent = "stop"
	Confirm  Intent = "confirm"
	Deny     Intent = "deny"
)

// Unknown is returned when no rule matches.
const Unknown Intent = "unknown"

type meta struct {
	family  Family
	subject string
}

var registry = map[Intent]meta{
	Shutdown:   {FamilySystemControl, ""},
	Restart:    {FamilySystemControl, ""},
	Lock:       {FamilySystemControl, ""},
	Sleep:      {FamilySystemControl, ""},
	Screenshot: {FamilySystemControl, ""},
	SystemInfo: {FamilySystemControl, ""},
	OpenApp:    {FamilySystemControl, EntityAppName},
	CloseApp:   {FamilySystemControl, EntityAppName},
	Volume:     {FamilySystemControl, EntityLevel},
	Brightness: {FamilySystemControl, EntityLevel},
	TypeText:   {FamilySystemControl, EntityText},
	PressKey:   {FamilySystemControl, EntityKey},

	SetAlarm:     {FamilyTask, EntityHour},
	SetReminder:  {FamilyTask, EntityTask},
	SetTimer:     {FamilyTask, EntityDuration},
	CancelTask:   {FamilyTask, EntityTaskID},
	CreateTodo:   {FamilyTask, EntityTask},
	ListTodos:    {FamilyTask, ""},
	CompleteTodo: {FamilyTask, EntityTaskNumber},
	DeleteTodo:   {FamilyTask, EntityTaskNumber},

	SendEmail:    {FamilyMessaging, EntityRecipient},
	SendWhatsApp: {FamilyMessaging, EntityRecipient},

	Weather:   {FamilyKnowledge, EntityLocation},
	Time:      {FamilyKnowledge, ""},
	Date:      {FamilyKnowledge, ""},
	News:      {FamilyKnowledge, ""},
	Search:    {FamilyKnowledge, EntityQuery},
	Wikipedia: {FamilyKnowledge, EntityQuery},

	Greeting: {FamilyConversation, ""},
	Thanks:   {FamilyConversation, ""},
	Goodbye:  {FamilyConversation, ""},
	Help:     {FamilyConversation, ""},
	Stop:     {FamilyConversation, ""},
	Confirm:  {FamilyConversation, ""},
	Deny:     {FamilyConversation, ""},

	Unknown: {FamilyUnknown, EntityRawQuery},
}

// Family returns the intent's family, FamilyUnknown for unregistered tags.
func (i Intent) Family() Family {
	if m, ok := registry[i]; ok {
		return m.family
	}
	return FamilyUnknown
}

// SubjectKey names the entity that makes a command self-contained, or ""
// when the intent takes no subject.
func (i Intent) SubjectKey() string {
	return registry[i].subject
}

// Valid reports whether i is one of the closed set of tags.
func (i Intent) Valid() bool {
	_, ok := registry[i]
	return ok
}

// Dangerous reports whether executing the intent needs explicit confirmation.
func (i Intent) Dangerous() bool {
	return i == Shutdown || i == Restart
}

func (i Intent) String() string { return string(i) }

// All returns every known intent tag in rule order followed by Unknown.
func All() []Intent {
	out := make([]Intent, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.Intent)
	}
	return append(out, Unknown)
}
