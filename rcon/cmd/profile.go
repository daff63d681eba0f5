package cmd

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const DefaultProfile = "default"

var (
	ErrNoHost          = fmt.Errorf("a host is required")
	ErrNoPort          = fmt.Errorf("a port is required")
	ErrProfileNotFound = fmt.Errorf("profile not found")
)

// Duration accepts either a duration string ("5s") or integer nanoseconds
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	switch value := v.(type) {
	case int:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) String() string {
	return fmt.Sprintf("%v", time.Duration(d))
}

// Profile holds the connection settings for one server
type Profile struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Password       string   `yaml:"password"`
	Timeout        Duration `yaml:"timeout"`
	PrometheusAddr string   `yaml:"prometheus_addr"`
}

// ProfileFile is the on-disk layout of --config-file:
//
//	profiles:
//	  default:
//	    host: 127.0.0.1
//	    port: 27015
//	    password: secret
//	    timeout: 5s
type ProfileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

func ReadProfiles(r io.Reader) (*ProfileFile, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var pf ProfileFile
	if err := yaml.UnmarshalStrict(b, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

func LoadProfiles(filename string) (*ProfileFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open config file %s", filename)
	}

	defer func() {
		if err := f.Close(); err != nil {
			log.Errorf("LoadProfiles: error closing file %v", err)
		}
	}()

	pf, err := ReadProfiles(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", filename)
	}
	return pf, nil
}

// Get returns the named profile
func (pf *ProfileFile) Get(name string) (Profile, error) {
	p, ok := pf.Profiles[name]
	if !ok {
		return Profile{}, errors.Wrapf(ErrProfileNotFound, "profile %q", name)
	}
	return p, nil
}

// Merge overlays the non-zero fields of o on p
func (p Profile) Merge(o Profile) Profile {
	if o.Host != "" {
		p.Host = o.Host
	}
	if o.Port != 0 {
		p.Port = o.Port
	}
	if o.Password != "" {
		p.Password = o.Password
	}
	if o.Timeout != 0 {
		p.Timeout = o.Timeout
	}
	if o.PrometheusAddr != "" {
		p.PrometheusAddr = o.PrometheusAddr
	}
	return p
}

func (p Profile) Validate() error {
	if p.Host == "" {
		return ErrNoHost
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Wrapf(ErrNoPort, "port=%d", p.Port)
	}
	return nil
}
