package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
	"github.com/forenvision/case-console/internal/core/service"
)

type command struct {
	summary string
	usage   string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, e *env) error
	// console commands keep the console adapters instead of the terminal ones.
	console bool
}

var commands = map[string]command{
	"login": {
		summary: "Sign in and store the session",
		usage:   "login --email EMAIL [--password PASSWORD]",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
			fs.String("password", "", "account password (read from stdin when empty)")
		},
		run: runLogin,
	},
	"signup": {
		summary: "Register a new account",
		usage:   "signup --email EMAIL --password PASSWORD --role admin|investigator [profile flags]",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
			fs.String("password", "", "account password")
			fs.String("name", "", "full name")
			fs.String("contact", "", "contact number")
			fs.String("role", string(domain.RoleInvestigator), "admin or investigator")
			fs.String("specialization", "", "investigator specialization")
			fs.Int("years", -1, "years of experience")
			fs.String("certification", "", "certification")
			fs.String("department", "", "department")
		},
		run: runSignup,
	},
	"logout": {
		summary: "End the session",
		run:     runLogout,
	},
	"whoami": {
		summary: "Show the session status",
		run:     runWhoami,
	},
	"refresh": {
		summary: "Re-read the identity from the API",
		run:     runRefresh,
	},
	"profile": {
		summary: "Update profile fields or the profile picture",
		usage:   "profile [--set key=value]... [--picture FILE]",
		flags: func(fs *pflag.FlagSet) {
			fs.StringArray("set", nil, "profile field to update, key=value (repeatable)")
			fs.String("picture", "", "new profile picture")
		},
		run: runProfile,
	},
	"availability": {
		summary: "Toggle investigator availability",
		usage:   "availability on|off",
		run:     runAvailability,
	},
	"request": {
		summary: "Send an authenticated API call",
		usage:   "request METHOD PATH [--data JSON]",
		flags: func(fs *pflag.FlagSet) {
			fs.String("data", "", "JSON request body, or @file")
		},
		run: runRequest,
	},
	"upload": {
		summary: "Send an authenticated multipart upload",
		usage:   "upload PATH --file FILE [--field NAME] [--set key=value]...",
		flags: func(fs *pflag.FlagSet) {
			fs.StringArray("file", nil, "file to upload (repeatable)")
			fs.String("field", "file", "form field name of the files")
			fs.StringArray("set", nil, "form field, key=value (repeatable)")
		},
		run: runUpload,
	},
	"watch": {
		summary: "Print session changes from every instance until interrupted",
		run:     runWatch,
	},
	"serve": {
		summary: "Run the web console",
		usage:   "serve [--addr ADDR]",
		flags: func(fs *pflag.FlagSet) {
			fs.String("addr", "", "listen address (env CONSOLE_ADDR)")
		},
		run:     runServe,
		console: true,
	},
}

func runLogin(ctx context.Context, e *env) error {
	email, _ := e.flags.GetString("email")
	password, _ := e.flags.GetString("password")
	if email == "" {
		return errors.New("login: --email is required")
	}
	if password == "" {
		fmt.Fprint(e.errOut, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("login: read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	ident, err := e.app.Auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Signed in as %s (%s). Home: %s\n", displayName(ident), ident.Role, ident.Role.Home())
	return nil
}

func runSignup(ctx context.Context, e *env) error {
	req := ports.SignupRequest{}
	req.Email, _ = e.flags.GetString("email")
	req.Password, _ = e.flags.GetString("password")
	req.Name, _ = e.flags.GetString("name")
	req.ContactNumber, _ = e.flags.GetString("contact")
	req.Role, _ = e.flags.GetString("role")
	req.Specialization, _ = e.flags.GetString("specialization")
	req.Certification, _ = e.flags.GetString("certification")
	req.Department, _ = e.flags.GetString("department")
	if years, _ := e.flags.GetInt("years"); years >= 0 {
		req.YearsOfExperience = &years
	}

	res, err := e.app.Auth.Signup(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, res.Message)
	if res.RequiresApproval {
		fmt.Fprintln(e.out, "The account must be approved by an administrator before you can sign in.")
	}
	return nil
}

func runLogout(ctx context.Context, e *env) error {
	return e.app.Auth.Logout(ctx)
}

type whoamiOutput struct {
	State          domain.SessionState `json:"state"`
	Identity       *domain.Identity    `json:"identity,omitempty"`
	TokenExpiresAt *time.Time          `json:"token_expires_at,omitempty"`
}

func runWhoami(ctx context.Context, e *env) error {
	st := e.app.Machine.Status()
	out := whoamiOutput{State: st.State, Identity: st.Identity}
	if token, ok := e.app.Store.ReadToken(ctx); ok && st.Authenticated() {
		if exp, ok := service.TokenExpiry(token); ok {
			out.TokenExpiresAt = &exp
		}
	}
	if err := writeJSON(e.out, out); err != nil {
		return err
	}
	if !st.Authenticated() {
		return &exitError{code: 1}
	}
	return nil
}

func runRefresh(ctx context.Context, e *env) error {
	ident, err := e.app.Auth.Refresh(ctx)
	if err != nil {
		return err
	}
	return writeJSON(e.out, ident)
}

func runProfile(ctx context.Context, e *env) error {
	sets, _ := e.flags.GetStringArray("set")
	picture, _ := e.flags.GetString("picture")
	if len(sets) == 0 && picture == "" {
		return errors.New("profile: nothing to update, use --set or --picture")
	}

	var ident *domain.Identity
	if len(sets) > 0 {
		fields, err := splitAssignments(sets)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		partial := make(map[string]any, len(fields))
		for k, v := range fields {
			partial[k] = v
		}
		if ident, err = e.app.Auth.UpdateProfile(ctx, partial); err != nil {
			return err
		}
	}
	if picture != "" {
		f, err := os.Open(picture)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		defer f.Close()
		if ident, err = e.app.Auth.UploadProfilePicture(ctx, filepath.Base(picture), f); err != nil {
			return err
		}
	}
	return writeJSON(e.out, ident)
}

func runAvailability(ctx context.Context, e *env) error {
	if len(e.args) != 1 {
		return errors.New("availability: expected on or off")
	}
	var available bool
	switch strings.ToLower(e.args[0]) {
	case "on", "true", "yes":
		available = true
	case "off", "false", "no":
	default:
		return fmt.Errorf("availability: expected on or off, got %q", e.args[0])
	}

	ident, err := e.app.Auth.SetAvailability(ctx, available)
	if err != nil {
		return err
	}
	state := "unavailable"
	if p := ident.InvestigatorProfile; p != nil && p.IsAvailable != nil && *p.IsAvailable {
		state = "available"
	}
	fmt.Fprintf(e.out, "%s is now %s\n", displayName(ident), state)
	return nil
}

func runRequest(ctx context.Context, e *env) error {
	if len(e.args) != 2 {
		return errors.New("request: expected METHOD PATH")
	}
	opts := ports.RequestOptions{Method: strings.ToUpper(e.args[0])}
	if data, _ := e.flags.GetString("data"); data != "" {
		body, err := readData(data)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		if !json.Valid(body) {
			return errors.New("request: --data is not valid JSON")
		}
		opts.Body = body
	}

	resp, err := e.app.Gateway.Request(ctx, e.args[1], opts)
	if err != nil {
		return err
	}
	return printResponse(e, resp)
}

func runUpload(ctx context.Context, e *env) error {
	if len(e.args) != 1 {
		return errors.New("upload: expected PATH")
	}
	files, _ := e.flags.GetStringArray("file")
	field, _ := e.flags.GetString("field")
	sets, _ := e.flags.GetStringArray("set")
	if len(files) == 0 {
		return errors.New("upload: at least one --file is required")
	}

	fields, err := splitAssignments(sets)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	form := &ports.UploadForm{Fields: fields}
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		defer f.Close()
		form.Files = append(form.Files, ports.FormFile{Field: field, Filename: filepath.Base(name), Content: f})
	}

	resp, err := e.app.Gateway.Upload(ctx, e.args[0], form)
	if err != nil {
		return err
	}
	return printResponse(e, resp)
}

func runWatch(ctx context.Context, e *env) error {
	st := e.app.Machine.Status()
	fmt.Fprintf(e.out, "%s  %s\n", time.Now().Format(time.TimeOnly), describe(st))

	unsubscribe := e.app.Bus.Subscribe(func(_ context.Context, evt domain.SessionEvent) {
		source := "local"
		if evt.Remote {
			source = "remote " + evt.Origin
		}
		fmt.Fprintf(e.out, "%s  %-16s %-12s %s\n", evt.At.Format(time.TimeOnly), evt.Kind, source, describe(e.app.Machine.Status()))
	})
	defer unsubscribe()

	<-ctx.Done()
	return nil
}

func describe(st domain.SessionStatus) string {
	if !st.Authenticated() {
		return string(st.State)
	}
	return fmt.Sprintf("%s as %s (%s)", st.State, displayName(st.Identity), st.Identity.Role)
}

func displayName(ident *domain.Identity) string {
	if ident.Name != "" {
		return ident.Name
	}
	if ident.Email != "" {
		return ident.Email
	}
	return fmt.Sprintf("user %d", ident.ID)
}

func readData(data string) ([]byte, error) {
	if name, ok := strings.CutPrefix(data, "@"); ok {
		return os.ReadFile(name)
	}
	return []byte(data), nil
}

// printResponse writes the body to stdout and the status to stderr; non-2xx
// answers exit with status 1.
func printResponse(e *env, resp *http.Response) error {
	defer resp.Body.Close()
	fmt.Fprintf(e.errOut, "%s\n", resp.Status)
	if _, err := io.Copy(e.out, resp.Body); err != nil {
		return err
	}
	fmt.Fprintln(e.out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &exitError{code: 1}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
