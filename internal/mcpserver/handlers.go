package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/render"
)

// registerTools registers the dialogue control tools with the MCP server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("status",
			mcp.WithDescription("Show the dialogue's topic, lifecycle state, round and message counts"),
		),
		s.handleStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("transcript",
			mcp.WithDescription("Return the discussion so far as markdown"),
		),
		s.handleTranscript,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("tally",
			mcp.WithDescription("Return the count of participant messages per stance (agree, disagree, risk, idea)"),
		),
		s.handleTally,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("react",
			mcp.WithDescription("Attach a reaction from a participant to a message. A second reaction from the same participant replaces the first."),
			mcp.WithString("message_id", mcp.Required(),
				mcp.Description("ID of the message to react to"),
			),
			mcp.WithString("participant_id", mcp.Required(),
				mcp.Description("ID of the reacting participant"),
			),
			mcp.WithString("tag", mcp.Required(),
				mcp.Enum(string(dialogue.TagAgree), string(dialogue.TagRisk), string(dialogue.TagDisagree)),
				mcp.Description("Reaction tag"),
			),
		),
		s.handleReact,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("pause",
			mcp.WithDescription("Pause the dialogue before the next turn"),
		),
		s.handlePause,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("resume",
			mcp.WithDescription("Resume a paused dialogue"),
		),
		s.handleResume,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("stop",
			mcp.WithDescription("Stop the dialogue. The turn in flight finishes; no further turns start."),
		),
		s.handleStop,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("synthesize",
			mcp.WithDescription("Produce the outcome record (consensus, tensions, non-negotiables, decision options) of a completed dialogue. Allowed once per session."),
		),
		s.handleSynthesize,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("save",
			mcp.WithDescription("Save a snapshot of the session to the local archive"),
		),
		s.handleSave,
	)
}

// handleStatus reports the lifecycle state.
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.dlg.Snapshot()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n", snap.Session)
	if snap.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", snap.Topic)
	}
	fmt.Fprintf(&sb, "State: %s\n", snap.State)
	if snap.MaxRounds > 0 {
		fmt.Fprintf(&sb, "Round: %d of %d\n", snap.Round, snap.MaxRounds)
	}
	fmt.Fprintf(&sb, "Participants: %d\n", len(snap.Participants))

	turns, system, inFlight := 0, 0, 0
	for _, m := range snap.Messages {
		switch m.Kind {
		case dialogue.KindParticipant:
			turns++
		case dialogue.KindSystem:
			system++
		case dialogue.KindPlaceholder:
			inFlight++
		}
	}
	fmt.Fprintf(&sb, "Messages: %d turns, %d system", turns, system)
	if inFlight > 0 {
		fmt.Fprintf(&sb, ", %d in progress", inFlight)
	}
	sb.WriteString("\n")
	if snap.Outcome != nil {
		sb.WriteString("Outcome: generated\n")
	} else {
		sb.WriteString("Outcome: not generated\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// handleTranscript renders the discussion as markdown.
func (s *Server) handleTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(render.TranscriptMarkdown(s.dlg.Snapshot())), nil
}

// handleTally returns counts and shares per stance as JSON.
func (s *Server) handleTally(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tally := s.dlg.Snapshot().Tally

	type entry struct {
		Count int     `json:"count"`
		Share float64 `json:"share"`
	}
	out := struct {
		Total   int                       `json:"total"`
		Stances map[dialogue.Stance]entry `json:"stances"`
	}{
		Total:   tally.Total(),
		Stances: make(map[dialogue.Stance]entry, len(tally)),
	}
	for st, n := range tally {
		out.Stances[st] = entry{Count: n, Share: tally.Share(st)}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode tally: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleReact attaches a reaction.
func (s *Server) handleReact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if args == nil {
		return mcp.NewToolResultError("no arguments provided"), nil
	}

	messageID, ok := args["message_id"].(string)
	if !ok || messageID == "" {
		return mcp.NewToolResultError("missing or invalid 'message_id' parameter"), nil
	}
	participantID, ok := args["participant_id"].(string)
	if !ok || participantID == "" {
		return mcp.NewToolResultError("missing or invalid 'participant_id' parameter"), nil
	}
	rawTag, _ := args["tag"].(string)
	tag, err := dialogue.ParseTag(rawTag)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid tag %q: use agree, risk or disagree", rawTag)), nil
	}

	if err := s.dlg.React(ctx, messageID, participantID, tag); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to react: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s reacted %s to %s", participantID, tag, messageID)), nil
}

// handlePause requests a pause at the next turn boundary.
func (s *Server) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.dlg.Pause(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to pause: %v", err)), nil
	}
	return mcp.NewToolResultText("Pause requested; the dialogue halts before the next turn."), nil
}

// handleResume releases a pause.
func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.dlg.Resume(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resume: %v", err)), nil
	}
	return mcp.NewToolResultText("Dialogue resumed."), nil
}

// handleStop signals the stop token.
func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.dlg.Stop()
	return mcp.NewToolResultText("Stop requested; no further turns will start."), nil
}

// handleSynthesize produces the outcome record.
func (s *Server) handleSynthesize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := s.dlg.Synthesize(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("synthesis failed: %v", err)), nil
	}
	text, err := render.OutcomeJSON(outcome)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode outcome: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// handleSave forwards a snapshot to the archive.
func (s *Server) handleSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.saver == nil {
		return mcp.NewToolResultError("no archive configured"), nil
	}
	entry, err := s.saver.Save(ctx, s.dlg.Snapshot())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved session %s as %s (%d messages)", entry.Session, entry.ID, entry.Messages)), nil
}
