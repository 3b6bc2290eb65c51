// Package webserver serves the browser surface of Bisa Coding: the project
// dashboard, per-project chat pages and a streaming send endpoint.
package webserver

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/Masterminds/sprig/v3"
	"github.com/spf13/cobra"

	"github.com/bisacoding/bisacoding/internal/mentor"
	"github.com/bisacoding/bisacoding/store"
)

//go:embed templates
var templatesFS embed.FS

// PageData feeds the page templates.
type PageData struct {
	Title    string
	Project  *ProjectViewModel
	Projects []ProjectViewModel
}

// ProjectViewModel decorates a project for rendering.
type ProjectViewModel struct {
	*store.Project
	FormattedTime string
	MessageCount  int
}

// NewServeCmd instantiates and returns the serve command.
func NewServeCmd(mentorClient *mentor.Client, s *store.Store) *cobra.Command {
	var opts struct {
		Port int
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Bisa Coding web interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := &Server{
				store:  s,
				mentor: mentorClient,
			}
			return server.Start(opts.Port)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 3030, "Port to serve on")
	return cmd
}

// Server wires the store and the mentor client behind HTTP handlers.
type Server struct {
	store  *store.Store
	mentor *mentor.Client
	tmpl   *template.Template

	// One outstanding mentor exchange at a time; the UI disables further
	// sends while one is in flight and the server enforces it.
	sendMu sync.Mutex
}

// Start the server on the given port.
func (s *Server) Start(port int) error {
	funcMap := sprig.HtmlFuncMap()
	funcMap["formatMessage"] = formatMessage

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	s.tmpl = tmpl

	http.HandleFunc("/", s.handleIndex)
	http.HandleFunc("/new", s.handleNewProject)
	http.HandleFunc("/delete-all", s.handleDeleteAll)
	http.HandleFunc("/project/", s.handleProjectRoutes)

	addr := fmt.Sprintf(":%d", port)
	fmt.Printf("Server starting on http://localhost%s\n", addr)
	return http.ListenAndServe(addr, nil)
}

func (s *Server) handleProjectRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}

	projectID := parts[2]

	switch {
	case r.Method == "GET" && len(parts) == 3:
		s.handleProject(w, r, projectID)
	case r.Method == "POST" && len(parts) == 4 && parts[3] == "send":
		s.handleSend(w, r, projectID)
	case r.Method == "DELETE" && len(parts) == 3:
		s.handleDeleteProject(w, r, projectID)
	default:
		http.NotFound(w, r)
	}
}
