package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/browser-infra/buildtools/internal/jnigen"
	"github.com/spf13/cobra"
)

type jniConfig struct {
	JavaFile     string   `mapstructure:"java_file"`
	JavapClass   string   `mapstructure:"javap_class"`
	JavapOutput  string   `mapstructure:"javap_output"`
	Classpath    string   `mapstructure:"classpath"`
	Output       string   `mapstructure:"output"`
	PtrType      string   `mapstructure:"ptr_type"`
	AlwaysMangle bool     `mapstructure:"always_mangle"`
	Classes      []string `mapstructure:"classes"`
}

func installJNICmd(app *App) {
	cmd := &cobra.Command{
		Use:   "jni-generate",
		Short: "Generate the JNI header of a Java class",
		Long: `Generate the C++ JNI header of a Java class.

The class is read from a Java source file, from a class name given to javap, or from
a previously saved javap listing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.JNI

			opts := []jnigen.Options{jnigen.WithLogger(slog.Default()), jnigen.WithClasses(cfg.Classes...)}
			if cfg.PtrType != "" {
				opts = append(opts, jnigen.WithPtrType(cfg.PtrType))
			}
			if cfg.AlwaysMangle {
				opts = append(opts, jnigen.WithAlwaysMangle())
			}
			g := jnigen.New(opts...)

			var header string
			var err error
			if cfg.JavapOutput != "" {
				if cfg.JavaFile != "" || cfg.JavapClass != "" {
					return app.usageError(errors.New("--javap-output excludes --java-file and --javap-class"))
				}
				var data []byte
				if data, err = os.ReadFile(cfg.JavapOutput); err != nil {
					return err
				}
				header, err = g.FromJavapOutput(string(data))
			} else {
				header, err = g.Generate(cmd.Context(), jnigen.Input{JavaFile: cfg.JavaFile, JavapClass: cfg.JavapClass, Classpath: cfg.Classpath})
				if errors.Is(err, jnigen.ErrInvalidInput) {
					return app.usageError(err)
				}
			}
			if err != nil {
				return err
			}

			if cfg.Output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), header)
				return err
			}
			return fileutils.AtomicWrite(cfg.Output, []byte(header))
		},
	}

	cmd.Flags().StringVar(&app.config.JNI.JavaFile, "java-file", "", "Java source file to generate the header of")
	cmd.Flags().StringVar(&app.config.JNI.JavapClass, "javap-class", "", "class without sources, listed with javap")
	cmd.Flags().StringVar(&app.config.JNI.JavapOutput, "javap-output", "", "file holding the output of javap -s -constants")
	cmd.Flags().StringVar(&app.config.JNI.Classpath, "classpath", "", "classpath given to javap")
	cmd.Flags().StringVarP(&app.config.JNI.Output, "output", "o", "", "header file to write, standard output if empty")
	cmd.Flags().StringVar(&app.config.JNI.PtrType, "ptr-type", jnigen.DefaultPtrType, "Java type holding C++ pointers")
	cmd.Flags().BoolVar(&app.config.JNI.AlwaysMangle, "always-mangle", false, "mangle every called by native stub name")
	cmd.Flags().StringSliceVar(&app.config.JNI.Classes, "classes", nil, "fully qualified classes resolvable without an import")
	app.bindFlags("jni", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
