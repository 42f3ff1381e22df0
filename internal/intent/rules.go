package intent

import (
	"regexp"
	"strings"
)

// Rule maps trigger patterns to an intent. Patterns are regular expressions
// matched against normalized text on word boundaries.
type Rule struct {
	Intent   Intent
	Patterns []string
}

type compiledRule struct {
	intent Intent
	regex  *regexp.Regexp
}

// rules is the ordered rule table. The first match wins, so more specific
// rules sit above the generic verbs they overlap with:
//   - task rules precede system control so "stop the timer" is a cancel
//     and "start a timer" is not open_app
//   - close_app precedes open_app
//   - time/date precede search so "what is the date" is not a query
//   - stop precedes confirm/deny and the small-talk rules
var rules = []Rule{
	{CancelTask, []string{
		`(?:cancel|stop|clear) (?:the |my |that |this )?(?:alarm|reminder|timer|task)s?`,
		`(?:cancel|stop|clear) (?:the |my )?\d{1,2}(?::\d{2})?(?: ?[ap]m)? (?:alarm|reminder|timer)`,
		`(?:delete|remove) (?:the |my |that |this )?(?:alarm|reminder|timer)s?`,
		`turn off (?:the |my )?(?:alarm|timer)`,
	}},
	{SetAlarm, []string{
		`set (?:an |the |a |my )?alarm`,
		`alarm (?:for|at)`,
		`wake me(?: up)?`,
	}},
	{SetReminder, []string{
		`remind me`,
		`set (?:a |the )?reminder`,
		`reminder (?:to|for|about)`,
	}},
	{SetTimer, []string{
		`(?:set|start) (?:a |the )?timer`,
		`timer for`,
		`count ?down`,
	}},
	{ListTodos, []string{
		`(?:list|show|read|tell)(?: me)? (?:all )?(?:my |the )?(?:todos|to dos|todo list|to do list|tasks)`,
		`what(?:s| is| are) on (?:my |the )?(?:todo|to do) list`,
	}},
	{CompleteTodo, []string{
		`(?:complete|finish|check off|tick off|mark off) (?:the )?(?:todo|to do|task|item)`,
		`mark (?:todo |to do |task |item )?(?:number )?\w+ (?:as )?(?:done|complete|completed|finished)`,
	}},
	{DeleteTodo, []string{
		`(?:delete|remove) (?:the )?(?:todo|to do|task|item)`,
		`(?:delete|remove) .+ from (?:my |the )?(?:todo|to do) list`,
	}},
	{CreateTodo, []string{
		`add .+ to (?:my |the )?(?:todo|to do) list`,
		`(?:create|add|new) (?:a |an )?(?:todo|to do|task)`,
	}},
	{Shutdown, []string{
		`shut ?down`,
		`power off`,
		`turn off (?:the )?(?:computer|pc|system|machine)`,
	}},
	{Restart, []string{
		`restart`,
		`reboot`,
	}},
	{Lock, []string{
		`lock (?:the |my )?(?:computer|screen|pc|system|workstation)`,
	}},
	{Sleep, []string{
		`sleep mode`,
		`put (?:the |my )?(?:computer|pc|system|machine) to sleep`,
		`hibernate`,
	}},
	{Screenshot, []string{
		`screen ?shot`,
		`capture (?:the |my )?screen`,
	}},
	{SystemInfo, []string{
		`system (?:info|information|status)`,
		`battery`,
		`cpu(?: usage)?`,
		`(?:memory|ram|disk) (?:usage|space)`,
	}},
	{CloseApp, []string{
		`close`,
		`quit`,
		`exit`,
		`kill`,
		`terminate`,
	}},
	{OpenApp, []string{
		`open`,
		`launch`,
		`start`,
		`run`,
	}},
	{Volume, []string{
		`volume`,
		`mute`,
		`unmute`,
		`louder`,
		`quieter`,
	}},
	{Brightness, []string{
		`brightness`,
		`brighter`,
		`dimmer`,
		`dim (?:the )?screen`,
	}},
	{SendEmail, []string{
		`e ?mail`,
	}},
	{SendWhatsApp, []string{
		`whats ?app`,
		`send (?:a |an )?message`,
		`message \w+ saying`,
	}},
	{TypeText, []string{
		`type`,
		`write down`,
		`dictate`,
	}},
	{PressKey, []string{
		`press`,
		`hit (?:the )?\w+ key`,
	}},
	{Weather, []string{
		`weather`,
		`temperature`,
		`forecast`,
		`(?:is it|will it) (?:going to )?rain`,
	}},
	{Time, []string{
		`what time`,
		`time is it`,
		`(?:the|current) time`,
	}},
	{Date, []string{
		`what(?:s| is) (?:the |todays )?date`,
		`what day`,
		`todays date`,
		`the date`,
	}},
	{News, []string{
		`news`,
		`headlines`,
	}},
	{Wikipedia, []string{
		`wikipedia`,
		`who (?:is|was)`,
		`tell me about`,
	}},
	{Search, []string{
		`search(?: for)?`,
		`look up`,
		`google`,
		`find`,
		`what(?:s| is)`,
	}},
	{Stop, []string{
		`stop`,
		`stop listening`,
		`be quiet`,
		`shut up`,
		`thats all`,
	}},
	{Confirm, []string{
		`yes`,
		`yeah`,
		`yep`,
		`confirm`,
		`do it`,
		`go ahead`,
		`sure`,
	}},
	{Deny, []string{
		`no`,
		`nope`,
		`cancel`,
		`never ?mind`,
	}},
	{Greeting, []string{
		`hello`,
		`hi`,
		`hey`,
		`good (?:morning|afternoon|evening)`,
	}},
	{Thanks, []string{
		`thanks`,
		`thank you`,
		`cheers`,
	}},
	{Goodbye, []string{
		`good ?bye`,
		`bye`,
		`see you`,
		`good night`,
	}},
	{Help, []string{
		`help`,
		`what can you do`,
	}},
}

var compiledRules = compileRules(rules)

func compileRules(rs []Rule) []compiledRule {
	out := make([]compiledRule, 0, len(rs))
	for _, r := range rs {
		out = append(out, compiledRule{
			intent: r.Intent,
			regex:  regexp.MustCompile(`\b(?:` + strings.Join(r.Patterns, "|") + `)\b`),
		})
	}
	return out
}

// Rules returns a copy of the ordered rule table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{Intent: r.Intent, Patterns: append([]string(nil), r.Patterns...)}
	}
	return out
}

// Classify returns the intent of the first rule matching normalized text,
// or Unknown.
func Classify(normalized string) Intent {
	for _, r := range compiledRules {
		if r.regex.MatchString(normalized) {
			return r.intent
		}
	}
	return Unknown
}
