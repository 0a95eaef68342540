package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"taskmind/pkg/client"
	"taskmind/pkg/completion"
	"taskmind/pkg/conversation"
	"taskmind/pkg/task"
	"taskmind/pkg/tasktree"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("TASKMIND_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx := context.Background()
	api := client.New(baseURL)

	switch os.Args[1] {
	case "list":
		handleList(ctx, api, os.Args[2:])
	case "tree":
		handleTree(ctx, api)
	case "get":
		handleGet(ctx, api, os.Args[2:])
	case "create":
		handleCreate(ctx, api, os.Args[2:])
	case "update":
		handleUpdate(ctx, api, os.Args[2:])
	case "complete":
		handleComplete(ctx, api, os.Args[2:])
	case "revert":
		handleRevert(ctx, api, os.Args[2:])
	case "chat":
		handleChat(ctx, api, os.Args[2:])
	case "events":
		handleEvents(ctx, api, os.Args[2:])
	case "status":
		handleStatus(ctx, api)
	default:
		usage()
		os.Exit(1)
	}
}

func handleList(ctx context.Context, api *client.Client, args []string) {
	flags := parseFlags(args)

	var tasks []task.Task
	var err error
	switch {
	case hasFlag(flags, "active"):
		tasks, err = api.Active(ctx)
	case hasFlag(flags, "overdue"):
		tasks, err = api.Overdue(ctx)
	case flags["priority"] != "":
		var p task.Priority
		p, err = task.ParsePriority(flags["priority"])
		if err != nil {
			fatal("%v", err)
		}
		tasks, err = api.ByPriority(ctx, p)
	default:
		tasks, err = api.Tasks(ctx)
	}
	if err != nil {
		fatal("list tasks: %v", err)
	}

	if flags["format"] == "short" {
		for _, t := range tasks {
			fmt.Println(shortLine(t, 0))
		}
		return
	}
	printJSON(tasks)
}

func handleTree(ctx context.Context, api *client.Client) {
	tree := tasktree.New(api)
	err := tree.Walk(ctx, func(n tasktree.Node) error {
		fmt.Println(shortLine(n.Task, n.Depth))
		return nil
	})
	if err != nil {
		fatal("walk tree: %v", err)
	}
}

func handleGet(ctx context.Context, api *client.Client, args []string) {
	id := requireID(args, "Usage: taskctl get <id>")
	t, err := api.Get(ctx, id)
	if err != nil {
		fatal("get task: %v", err)
	}
	printJSON(t)
}

func handleCreate(ctx context.Context, api *client.Client, args []string) {
	flags := parseFlags(args)
	desc := flags["description"]
	if desc == "" {
		fatal("--description is required")
	}

	t := task.Task{Description: desc}
	if d := flags["deadline"]; d != "" {
		deadline, err := parseWhen(d)
		if err != nil {
			fatal("parse deadline: %v", err)
		}
		t.Deadline = &deadline
	}
	if p := flags["priority"]; p != "" {
		prio, err := task.ParsePriority(p)
		if err != nil {
			fatal("%v", err)
		}
		t.Priority = &prio
	}
	if c := flags["constraints"]; c != "" {
		t.Constraints = &c
	}
	if parent := flags["parent"]; parent != "" {
		id, err := strconv.ParseInt(parent, 10, 64)
		if err != nil {
			fatal("parse parent id: %v", err)
		}
		t.ParentID = &id
	}

	created, err := api.Create(ctx, t)
	if err != nil {
		fatal("create task: %v", err)
	}
	printJSON(created)
}

func handleUpdate(ctx context.Context, api *client.Client, args []string) {
	id := requireID(args, "Usage: taskctl update <id> [--description=...] [--deadline=...] [--priority=...] [--constraints=...]")
	flags := parseFlags(args[1:])

	var upd task.Update
	if d, ok := flags["description"]; ok && d != "" {
		upd.Description = &d
	}
	if d := flags["deadline"]; d != "" {
		deadline, err := parseWhen(d)
		if err != nil {
			fatal("parse deadline: %v", err)
		}
		upd.Deadline = &deadline
	}
	if p := flags["priority"]; p != "" {
		prio, err := task.ParsePriority(p)
		if err != nil {
			fatal("%v", err)
		}
		upd.Priority = &prio
	}
	if c, ok := flags["constraints"]; ok && c != "" {
		upd.Constraints = &c
	}

	updated, err := api.Update(ctx, id, upd)
	if err != nil {
		fatal("update task: %v", err)
	}
	printJSON(updated)
}

func handleComplete(ctx context.Context, api *client.Client, args []string) {
	id := requireID(args, "Usage: taskctl complete <id>")
	coord := completion.New(api, nil)
	t, err := coord.Complete(ctx, id)
	if err != nil {
		if client.IsConflict(err) {
			fatal("task %d is already completed", id)
		}
		fatal("complete task: %v", err)
	}
	printJSON(t)
}

func handleRevert(ctx context.Context, api *client.Client, args []string) {
	id := requireID(args, "Usage: taskctl revert <id>")
	coord := completion.New(api, nil)
	t, err := coord.Revert(ctx, id)
	if err != nil {
		if client.IsConflict(err) {
			fatal("task %d is not completed", id)
		}
		fatal("revert task: %v", err)
	}
	printJSON(t)
}

func handleChat(ctx context.Context, api *client.Client, args []string) {
	flags := parseFlags(args)

	var state *conversation.State
	if idStr := flags["task"]; idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			fatal("parse task id: %v", err)
		}
		existing, err := api.Get(ctx, id)
		if err != nil {
			fatal("get task: %v", err)
		}
		state, err = conversation.NewUpdateState(*existing)
		if err != nil {
			fatal("open session: %v", err)
		}
		fmt.Printf("Refining task %d: %s\n", existing.ID, existing.Description)
	} else {
		state = conversation.NewState()
		fmt.Println("Describe the task you want to create. Ctrl-D to quit.")
	}

	engine := conversation.NewEngine(api)
	scanner := bufio.NewScanner(os.Stdin)
	for !state.Resolved() {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		if err := engine.Submit(ctx, state, scanner.Text()); err != nil {
			if errors.Is(err, conversation.ErrStale) {
				continue
			}
			fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
			continue
		}
		msgs := state.Messages()
		if len(msgs) > 0 {
			fmt.Println(msgs[len(msgs)-1].Text)
		}
	}

	saved, err := engine.Persist(ctx, state, api)
	if err != nil {
		fatal("save task: %v", err)
	}
	if saved != nil {
		fmt.Printf("Saved task %d: %s\n", saved.ID, saved.Description)
	}
}

func handleEvents(ctx context.Context, api *client.Client, args []string) {
	flags := parseFlags(args)
	limit := intFlag(flags, "limit", 20)
	events, err := api.Events(ctx, limit)
	if err != nil {
		fatal("list events: %v", err)
	}
	printJSON(events)
}

func handleStatus(ctx context.Context, api *client.Client) {
	status, err := api.Status(ctx)
	if err != nil {
		fatal("status: %v", err)
	}
	printJSON(status)
}

// shortLine renders one task for terminal output, indented by depth.
func shortLine(t task.Task, depth int) string {
	mark := "[ ]"
	if t.Completed {
		mark = "[x]"
	}
	line := fmt.Sprintf("%s%s #%d %s", strings.Repeat("  ", depth), mark, t.ID, t.Description)
	if t.Priority != nil {
		line += fmt.Sprintf(" (%s)", *t.Priority)
	}
	if t.Overdue(time.Now()) {
		line += " OVERDUE"
	}
	return line
}

func parseWhen(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func requireID(args []string, usageMsg string) int64 {
	if len(args) < 1 {
		fatal("%s", usageMsg)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fatal("parse id %q: %v", args[0], err)
	}
	return id
}

func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if idx := strings.Index(arg, "="); idx >= 0 {
			flags[arg[:idx]] = arg[idx+1:]
		} else {
			flags[arg] = ""
		}
	}
	return flags
}

func hasFlag(flags map[string]string, key string) bool {
	_, ok := flags[key]
	return ok
}

func intFlag(flags map[string]string, key string, defaultVal int) int {
	if v, ok := flags[key]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode JSON: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "taskctl: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: taskctl <command>

Commands:
  list      List tasks (--active, --overdue, --priority=HIGH, --format=short)
  tree      Print the task hierarchy
  get       Show one task
  create    Create a task (--description=... [--deadline=...] [--priority=...] [--constraints=...] [--parent=ID])
  update    Update task fields
  complete  Mark a task completed
  revert    Clear a task's completed state
  chat      Refine a task conversationally ([--task=ID] to refine an existing one)
  events    Show recent activity
  status    Show server counters

The server address is taken from TASKMIND_URL (default http://localhost:8080).`)
}
