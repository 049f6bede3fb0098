package config

import (
	"bufio"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/ghodss/yaml"
)

type EngineProperties struct {
	Slots          int    `cfg:"slots" yaml:"slots"`
	EventBatchSize int    `cfg:"event-batch-size" yaml:"eventBatchSize"`
	TickInterval   int    `cfg:"tick-interval" yaml:"tickInterval"`
	TimeWheelSize  int    `cfg:"timewheel-size" yaml:"timeWheelSize"`
	MaxObjects     int    `cfg:"max-objects" yaml:"maxObjects"`
	LogLevel       string `cfg:"loglevel" yaml:"logLevel"`
	DebugMode      bool   `cfg:"debug-mode" yaml:"debugMode"`
}

var Properties *EngineProperties

func init() {
	Properties = &EngineProperties{
		Slots:          0,
		EventBatchSize: 1024,
		TickInterval:   100,
		TimeWheelSize:  64,
		MaxObjects:     1 << 16,
		LogLevel:       "info",
		DebugMode:      false,
	}
}

func parse(reader io.Reader) *EngineProperties {
	configs := Properties
	cfgMap := make(map[string]string)
	scanner := bufio.NewScanner(reader)
	// scan config file
	for scanner.Scan() {
		line := scanner.Text()
		// skip comments
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		// get gap between key and value
		idx := strings.IndexAny(line, " ")
		if idx > 0 && idx < len(line)-1 {
			key := line[0:idx]
			value := strings.Trim(line[idx+1:], " ")
			// put key value into temp map
			cfgMap[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalln(err)
	}

	t := reflect.TypeOf(configs)
	v := reflect.ValueOf(configs)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		// use reflection to get fields
		field := t.Elem().Field(i)
		fieldValue := v.Elem().Field(i)
		key, ok := field.Tag.Lookup("cfg")
		if !ok {
			key = field.Name
		}
		value, ok := cfgMap[strings.ToLower(key)]
		if !ok {
			continue
		}
		switch field.Type.Kind() {
		case reflect.String:
			fieldValue.SetString(value)
		case reflect.Int:
			num, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				fieldValue.SetInt(num)
			}
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(value)
			if err == nil {
				fieldValue.SetBool(boolVal)
			}
		}
	}
	return configs
}

func parseYAML(file *os.File) *EngineProperties {
	configs := Properties
	bytes, err := ioutil.ReadAll(file)
	if err != nil {
		panic(err)
	}
	err = yaml.Unmarshal(bytes, configs)
	if err != nil {
		panic(err)
	}
	return configs
}

func LoadConfigs(configFilePath string) {
	file, err := os.Open(configFilePath)
	if err != nil {
		panic(err)
	}
	defer file.Close()
	ext := path.Ext(configFilePath)
	if ext == ".yaml" || ext == ".yml" {
		Properties = parseYAML(file)
	} else {
		Properties = parse(file)
	}
}
