package coolify

import "time"

type createApplicationRequest struct {
	Name             string `json:"name"`
	GitRepository    string `json:"git_repository"`
	GitBranch        string `json:"git_branch,omitempty"`
	BuildPack        string `json:"build_pack,omitempty"`
	PortsExposes     string `json:"ports_exposes,omitempty"`
	Domains          string `json:"domains,omitempty"`
	InstallCommand   string `json:"install_command,omitempty"`
	BuildCommand     string `json:"build_command,omitempty"`
	StartCommand     string `json:"start_command,omitempty"`
	BaseDirectory    string `json:"base_directory,omitempty"`
	PublishDirectory string `json:"publish_directory,omitempty"`
	IsStatic         bool   `json:"is_static,omitempty"`
	ProjectUUID      string `json:"project_uuid,omitempty"`
	ServerUUID       string `json:"server_uuid,omitempty"`
	EnvironmentName  string `json:"environment_name,omitempty"`
}

type applicationResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Domains string `json:"domains"`
}

type environmentRequest struct {
	EnvironmentVariables map[string]string `json:"environment_variables"`
}

type deploymentResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type logsResponse struct {
	Logs string `json:"logs"`
}

type errorResponse struct {
	Message string `json:"message"`
}
