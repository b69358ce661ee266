package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/nhle/malharro-cms/internal/logging"
	"github.com/nhle/malharro-cms/internal/model"
)

const usage = `Uso: malharro [opciones] [comando]

Comandos:
  inbox     abre la bandeja de notificaciones (por defecto)
  login     inicia sesión y guarda el token
  logout    olvida la sesión guardada
  whoami    muestra el usuario de la sesión guardada
  sync      sincroniza la bandeja una vez y muestra los no leídos
  usina     lista los trabajos aprobados de la Usina
  agenda    lista las actividades de la agenda
  init      escribe la configuración por defecto

Opciones:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "malharro:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	program    string
	mine       bool
	all        bool
}

func run(args []string) error {
	var opts options
	fs := pflag.NewFlagSet("malharro", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", model.DefaultConfigPath(), "archivo de configuración")
	fs.StringVar(&opts.program, "carrera", "", "filtra la Usina por carrera")
	fs.BoolVar(&opts.mine, "mios", false, "solo elementos creados por el usuario de la sesión")
	fs.BoolVar(&opts.all, "todas", false, "incluye actividades pasadas de la agenda")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	name := "inbox"
	if fs.NArg() > 0 {
		name = fs.Arg(0)
	}
	if name == "init" {
		return initConfig(opts.configPath)
	}

	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if name == "inbox" && cfg.Log.File == "" {
		// The TUI owns the terminal.
		cfg.Log.File = filepath.Join(filepath.Dir(opts.configPath), "malharro.log")
	}
	log, closeLog, err := logging.Open(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	e, err := newEnv(cfg, log, filepath.Dir(opts.configPath))
	if err != nil {
		return err
	}
	defer e.close()

	switch name {
	case "inbox":
		return e.inbox()
	case "login":
		return e.login()
	case "logout":
		return e.logout()
	case "whoami":
		return e.whoami()
	case "sync":
		return e.sync()
	case "usina":
		return e.usina(opts)
	case "agenda":
		return e.agenda(opts)
	}
	fs.Usage()
	return fmt.Errorf("comando desconocido %q", name)
}

func initConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s ya existe", path)
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Println("Configuración escrita en", path)
	return nil
}
