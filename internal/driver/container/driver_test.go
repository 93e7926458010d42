package container

import (
	"bytes"
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"syscall"
	"testing"

	"prompter/cli/internal/config"
	"prompter/cli/internal/console"
	"prompter/cli/internal/driver"
	"prompter/cli/internal/global"
	"prompter/cli/internal/procexec/procexectest"
)

func newTestDriver(f *procexectest.FakeExec, mutate func(*global.ContainerSettings)) (*Driver, *bytes.Buffer) {
	s := global.NormalizeSettings(global.Settings{}).Container
	if mutate != nil {
		mutate(&s)
	}
	var out bytes.Buffer
	return New(Options{
		Exec:     f,
		Settings: s,
		Reporter: console.New(&out, &out, true),
		Stdout:   &out,
		Stderr:   &out,
	}), &out
}

func TestCheckAvailable_UsesVersionQuery(t *testing.T) {
	f := procexectest.NewFakeExec().On("docker --version", "Docker version 27.1.1, build 6312585\n", nil)
	d, _ := newTestDriver(f, nil)
	version, err := d.CheckAvailable(context.Background())
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if version != "Docker version 27.1.1, build 6312585" {
		t.Fatalf("unexpected version %q", version)
	}
	if got := f.Calls(); len(got) != 1 || got[0] != "output docker --version" {
		t.Fatalf("unexpected calls: %#v", got)
	}
}

func TestCheckAvailable_MissingDockerIsUnavailable(t *testing.T) {
	f := procexectest.NewFakeExec().On("docker --version", "", errors.New("executable file not found in $PATH"))
	d, _ := newTestDriver(f, nil)
	_, err := d.CheckAvailable(context.Background())
	if !errors.Is(err, driver.ErrRuntimeUnavailable) {
		t.Fatalf("expected ErrRuntimeUnavailable, got %v", err)
	}
	var ue *driver.UnavailableError
	if !errors.As(err, &ue) || !strings.Contains(ue.Remediation, "https://www.docker.com/get-started") {
		t.Fatalf("expected remediation text, got %#v", ue)
	}
}

func TestProvision_ImagePresentSkipsBuild(t *testing.T) {
	f := procexectest.NewFakeExec().On("docker images -q", "4f1b2c3d\n", nil)
	d, out := newTestDriver(f, func(s *global.ContainerSettings) { s.BuildContext = "/src/prompter" })
	if err := d.Provision(context.Background(), config.LaunchConfig{}, driver.Policy{Required: true}); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if f.Called("run", "docker build") {
		t.Fatalf("build should be skipped when image exists: %#v", f.Calls())
	}
	if !strings.Contains(out.String(), "Docker image found") {
		t.Fatalf("expected found message, got %q", out.String())
	}
}

func TestProvision_BuildsWhenMissingOrForced(t *testing.T) {
	for _, tc := range []struct {
		name   string
		images string
		force  bool
	}{
		{name: "missing", images: ""},
		{name: "forced", images: "4f1b2c3d\n", force: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := procexectest.NewFakeExec().On("docker images -q", tc.images, nil)
			d, _ := newTestDriver(f, func(s *global.ContainerSettings) { s.BuildContext = "/src/prompter" })
			if err := d.Provision(context.Background(), config.LaunchConfig{}, driver.Policy{Force: tc.force, Required: true}); err != nil {
				t.Fatalf("provision failed: %v", err)
			}
			want := "run docker build -t " + global.DefaultContainerImage + " /src/prompter"
			if !slices.Contains(f.Calls(), want) {
				t.Fatalf("expected %q in %#v", want, f.Calls())
			}
		})
	}
}

func TestProvision_BuildFailureIsFatalWhenRequired(t *testing.T) {
	f := procexectest.NewFakeExec().
		On("docker images -q", "", nil).
		On("docker build", "", errors.New("exit status 1"))
	d, _ := newTestDriver(f, func(s *global.ContainerSettings) { s.BuildContext = "." })

	err := d.Provision(context.Background(), config.LaunchConfig{}, driver.Policy{Required: true})
	if !errors.Is(err, driver.ErrProvision) {
		t.Fatalf("expected ErrProvision, got %v", err)
	}

	err = d.Provision(context.Background(), config.LaunchConfig{}, driver.Policy{Required: false})
	if err != nil {
		t.Fatalf("best-effort provision should downgrade to warning, got %v", err)
	}
}

func TestProvision_NoBuildContext(t *testing.T) {
	f := procexectest.NewFakeExec().On("docker images -q", "", nil)
	d, out := newTestDriver(f, nil)
	if err := d.Provision(context.Background(), config.LaunchConfig{}, driver.Policy{Required: true}); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if f.Called("run", "docker pull") || f.Called("run", "docker build") {
		t.Fatalf("missing image without build context should be left to docker run: %#v", f.Calls())
	}
	if !strings.Contains(out.String(), "Docker will pull it on first run") {
		t.Fatalf("expected pull notice, got %q", out.String())
	}

	cfg := config.LaunchConfig{Image: "example/prompter:dev"}
	if err := d.Provision(context.Background(), cfg, driver.Policy{Force: true, Required: true}); err != nil {
		t.Fatalf("forced provision failed: %v", err)
	}
	if !slices.Contains(f.Calls(), "run docker pull example/prompter:dev") {
		t.Fatalf("forced provision should pull the override image: %#v", f.Calls())
	}
}

func TestProvision_RemovesLeftoverInstanceFirst(t *testing.T) {
	f := procexectest.NewFakeExec().
		On("docker stop", "", errors.New("No such container")).
		On("docker images -q", "4f1b2c3d\n", nil)
	d, _ := newTestDriver(f, nil)
	if err := d.Provision(context.Background(), config.LaunchConfig{}, driver.Policy{Required: true}); err != nil {
		t.Fatalf("a missing leftover instance must not fail provisioning: %v", err)
	}
	want := []string{
		"run docker stop oyren-prompter-instance",
		"run docker rm oyren-prompter-instance",
		"output docker images -q " + global.DefaultContainerImage,
	}
	if !slices.Equal(f.Calls(), want) {
		t.Fatalf("unexpected calls:\n%#v\nwant\n%#v", f.Calls(), want)
	}
}

func TestStart_RunsWithMappings(t *testing.T) {
	f := procexectest.NewFakeExec()
	f.Proc = procexectest.NewFakeProcess()
	d, _ := newTestDriver(f, nil)

	h, err := d.Start(context.Background(), config.LaunchConfig{Port: 8080, Directory: "/home/me/project", Debug: true})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	calls := f.Calls()
	want := []string{
		"start docker run --name oyren-prompter-instance --rm -p 8080:37465 -v /home/me/project:/project -e WORKSPACE_DIR=/project -e FLASK_PORT=37465 -e FLASK_DEBUG=1 oyrendev/prompter:latest",
	}
	if !slices.Equal(calls, want) {
		t.Fatalf("unexpected calls:\n%#v\nwant\n%#v", calls, want)
	}
	if h.ReadyURL != "http://127.0.0.1:8080/" || !h.RelayStderr || h.ReadyMarker != "" {
		t.Fatalf("unexpected handle: %+v", h)
	}
}

func TestStop_UsesEngineAndEscalates(t *testing.T) {
	f := procexectest.NewFakeExec()
	proc := procexectest.NewFakeProcess()
	d, _ := newTestDriver(f, nil)
	h := &driver.Handle{Process: proc}

	if err := d.Stop(context.Background(), h, os.Interrupt); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := d.Stop(context.Background(), h, os.Kill); err != nil {
		t.Fatalf("kill failed: %v", err)
	}
	want := []string{
		"run docker stop --time 10 oyren-prompter-instance",
		"run docker kill oyren-prompter-instance",
	}
	if !slices.Equal(f.Calls(), want) {
		t.Fatalf("unexpected calls %#v", f.Calls())
	}
	if proc.Killed() {
		t.Fatal("client must not be killed while the engine answers")
	}
}

func TestStop_KillsClientWhenEngineFails(t *testing.T) {
	f := procexectest.NewFakeExec().On("docker stop", "", errors.New("daemon unreachable"))
	proc := procexectest.NewFakeProcess()
	d, _ := newTestDriver(f, nil)
	if err := d.Stop(context.Background(), &driver.Handle{Process: proc}, syscall.SIGTERM); err == nil {
		t.Fatal("expected stop error to surface")
	}
	if !proc.Killed() {
		t.Fatal("expected docker client to be killed")
	}
}

func TestExplainExit_ImageMissing(t *testing.T) {
	d, _ := newTestDriver(procexectest.NewFakeExec(), nil)
	msg, ok := d.ExplainExit(ImageMissingExitCode)
	if !ok || !strings.Contains(msg, "Docker will automatically pull the image") {
		t.Fatalf("unexpected explanation ok=%v msg=%q", ok, msg)
	}
	if _, ok := d.ExplainExit(1); ok {
		t.Fatal("exit 1 should not be explained")
	}
}
