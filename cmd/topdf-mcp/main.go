// Command topdf-mcp exposes the topdf job API as MCP tools over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/use-agent/topdf/history"
	"github.com/use-agent/topdf/models"
)

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	apiURL := os.Getenv("TOPDF_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8790"
	}
	client := newAPIClient(strings.TrimRight(apiURL, "/"), os.Getenv("TOPDF_API_KEY"))

	s := server.NewMCPServer(
		"topdf",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	convertTool := mcp.NewTool("convert_document",
		mcp.WithDescription("Save a shared DocSend document as a PDF on this machine. Renders every page in a headless browser and returns the PDF path. If the document asks for an email or passcode that was not given, the job pauses; answer with provide_credentials."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The document link, https://docsend.com/view/<id>"),
		),
		mcp.WithString("email",
			mcp.Description("Email to submit if the document asks for one"),
		),
		mcp.WithString("passcode",
			mcp.Description("Passcode to submit if the document is protected"),
		),
		mcp.WithString("name",
			mcp.Description("Output file name without extension (default: the document title)"),
		),
	)
	s.AddTool(convertTool, handleConvert(client))

	credentialsTool := mcp.NewTool("provide_credentials",
		mcp.WithDescription("Answer a paused convert_document job with the email and/or passcode it is waiting for, then wait for it to finish."),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by convert_document"),
		),
		mcp.WithString("email",
			mcp.Description("Email address"),
		),
		mcp.WithString("passcode",
			mcp.Description("Document passcode"),
		),
	)
	s.AddTool(credentialsTool, handleProvide(client))

	historyTool := mcp.NewTool("list_history",
		mcp.WithDescription("List recent conversions, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries (default: all remembered)"),
		),
	)
	s.AddTool(historyTool, handleHistory(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleConvert(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		id, err := client.convert(ctx, models.ConvertRequest{
			URL:      url,
			Email:    request.GetString("email", ""),
			Passcode: request.GetString("passcode", ""),
			Name:     request.GetString("name", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("convert request failed: %v", err)), nil
		}
		return waitResult(ctx, client, id)
	}
}

func handleProvide(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError("job_id is required"), nil
		}
		creds := models.CredentialsRequest{
			Email:    request.GetString("email", ""),
			Passcode: request.GetString("passcode", ""),
		}
		if creds.Email == "" && creds.Passcode == "" {
			return mcp.NewToolResultError("provide an email, a passcode, or both"), nil
		}

		if err := client.provide(ctx, id, creds); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("credentials rejected by the API: %v", err)), nil
		}
		return waitResult(ctx, client, id)
	}
}

func handleHistory(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 0)
		hr, err := client.history(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history request failed: %v", err)), nil
		}
		if len(hr.Entries) == 0 {
			return mcp.NewToolResultText("No conversions yet."), nil
		}

		var sb strings.Builder
		for _, e := range hr.Entries {
			fmt.Fprintf(&sb, "- %s (%d pages, %s)\n  %s\n", e.Name, e.PageCount, history.RelativeTime(e.CreatedAt, time.Now()), e.Path)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func waitResult(ctx context.Context, client *apiClient, id string) (*mcp.CallToolResult, error) {
	jr, err := client.wait(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling job %s failed: %v", id, err)), nil
	}
	text, ok := describeJob(jr)
	if !ok {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

// describeJob renders a job for the model. ok is false for failures.
func describeJob(jr *models.JobResponse) (string, bool) {
	switch jr.Status {
	case models.JobCompleted:
		return fmt.Sprintf("Saved %d pages to %s", jr.Result.PageCount, jr.Result.Path), true
	case models.JobAwaitingEmail:
		return fmt.Sprintf("Job %s is waiting for an email address. Call provide_credentials with job_id %q and email.", jr.ID, jr.ID), true
	case models.JobAwaitingPasscode:
		return fmt.Sprintf("Job %s is waiting for a passcode. Call provide_credentials with job_id %q and passcode (and email if not given yet).", jr.ID, jr.ID), true
	}

	msg := fmt.Sprintf("Job %s %s", jr.ID, jr.Status)
	if e := jr.Error; e != nil {
		msg = fmt.Sprintf("%s: [%s] %s", msg, e.Code, e.Message)
		if e.Hint != "" {
			msg += "\nHint: " + e.Hint
		}
	}
	return msg, false
}
