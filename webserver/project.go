package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bisacoding/bisacoding/internal/llm"
	"github.com/bisacoding/bisacoding/store"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	projects := s.store.Projects()
	viewModels := make([]ProjectViewModel, 0, len(projects))
	for _, project := range projects {
		viewModels = append(viewModels, newProjectViewModel(project))
	}

	data := PageData{
		Title:    "Bisa Coding",
		Projects: viewModels,
	}
	if err := s.tmpl.ExecuteTemplate(w, "index", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request, projectID string) {
	project := s.store.Get(projectID)
	if project == nil {
		http.NotFound(w, r)
		return
	}

	viewModel := newProjectViewModel(project)
	data := PageData{
		Title:   project.Title,
		Project: &viewModel,
	}
	if err := s.tmpl.ExecuteTemplate(w, "project", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleNewProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.NotFound(w, r)
		return
	}
	project := s.store.CreateProject()
	http.Redirect(w, r, "/project/"+project.ID, http.StatusSeeOther)
}

// handleSend appends the posted message to the project and streams the mentor
// reply back as server-sent events: `chunk` events while text arrives, one
// `sources` event when citations exist, and a final `done` event.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, projectID string) {
	project := s.store.Get(projectID)
	if project == nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	content := r.FormValue("message")
	if content == "" {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	userMessage := &store.Message{
		Role:      llm.UserRole,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
	messages := append(project.Messages, userMessage)
	s.store.UpdateMessages(projectID, messages)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event, payload string) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
		flusher.Flush()
	}

	s.mentor.StreamReply(r.Context(), messages,
		func(chunk string) {
			data, _ := json.Marshal(chunk)
			emit("chunk", string(data))
		},
		func(fullText string, sources []*llm.Source) {
			modelMessage := &store.Message{
				Role:      llm.ModelRole,
				Content:   fullText,
				Timestamp: time.Now().UnixMilli(),
				Sources:   sources,
			}
			s.store.UpdateMessages(projectID, append(messages, modelMessage))
			if len(sources) > 0 {
				data, _ := json.Marshal(sources)
				emit("sources", string(data))
			}
			data, _ := json.Marshal(fullText)
			emit("done", string(data))
		},
		nil,
	)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, projectID string) {
	s.store.DeleteProject(projectID)

	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.NotFound(w, r)
		return
	}
	s.store.DeleteAll()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func newProjectViewModel(project *store.Project) ProjectViewModel {
	return ProjectViewModel{
		Project:       project,
		FormattedTime: time.UnixMilli(project.UpdatedAt).Format("Jan 2, 2006 3:04 PM"),
		MessageCount:  len(project.Messages),
	}
}
