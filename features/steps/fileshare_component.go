package steps

import (
	"context"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/dp-fileshare-steps/dispatch"
	"github.com/ONSdigital/dp-fileshare-steps/response"
	"github.com/ONSdigital/log.go/v2/log"
	"github.com/pkg/errors"
)

var ErrNoResponse = errors.New("no request has been sent yet")

// FileShareComponent wires the server, files and sharing steps of one
// scenario to a single dispatcher.
type FileShareComponent struct {
	cfg        *config.Config
	Dispatcher *dispatch.Dispatcher
	Server     *ServerComponent
	Files      *FilesComponent
	Sharing    *SharingComponent
}

func NewFileShareComponent(cfg *config.Config, deps *External) (*FileShareComponent, error) {
	d, err := dispatch.NewFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating dispatcher")
	}

	files := NewFilesComponent(d, deps.Opener(), cfg.UseLegacyDavPath)
	return &FileShareComponent{
		cfg:        cfg,
		Dispatcher: d,
		Server:     NewServerComponent(d),
		Files:      files,
		Sharing:    NewSharingComponent(d, files, cfg.SharingAPIVersion),
	}, nil
}

// Close removes what the scenario created on the servers.
func (c *FileShareComponent) Close(ctx context.Context) error {
	c.Sharing.Reset()
	if err := c.Server.TearDown(ctx); err != nil {
		log.Error(ctx, "scenario teardown failed", err)
		return err
	}
	return nil
}

func (c *FileShareComponent) lastResponse() (*response.Response, error) {
	r := c.Dispatcher.LastResponse()
	if r == nil {
		return nil, ErrNoResponse
	}
	return r, nil
}
