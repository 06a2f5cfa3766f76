// cmd/quill/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"quill/internal/blob"
	"quill/internal/diff"
	"quill/internal/merge"
	"quill/internal/template"
	"quill/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill is a version control engine for document templates",
	Long: `Quill manages versioned template content (HTML, CSS and JS) with
branches, commit history, structural diffs and three-way merges.`,
}

type store struct {
	db  *badger.DB
	svc *template.Service
}

func openStore() (*store, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	blobs, err := blob.NewDiskStore(db, blob.Options{
		Root: filepath.Join(dbPath, "objects"),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing blob store: %w", err)
	}

	return &store{db: db, svc: template.NewService(db, blobs, logger)}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func readSection(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".quill", "path to the quill database")

	var htmlFile, cssFile, jsFile, author, message, branchName string

	var createCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a template with its initial content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			html, err := readSection(htmlFile)
			if err != nil {
				return err
			}
			css, err := readSection(cssFile)
			if err != nil {
				return err
			}
			js, err := readSection(jsFile)
			if err != nil {
				return err
			}

			t, root, err := s.svc.Create(args[0], "", author, html, css, js)
			if err != nil {
				return fmt.Errorf("creating template: %w", err)
			}

			fmt.Printf("Created template %s (%s)\n", t.Name, t.ID)
			fmt.Printf("Initial commit %s on %s\n", utils.ShortHash(root.ID), t.DefaultBranch)
			return nil
		},
	}
	createCmd.Flags().StringVar(&htmlFile, "html", "", "HTML content file")
	createCmd.Flags().StringVar(&cssFile, "css", "", "CSS content file")
	createCmd.Flags().StringVar(&jsFile, "js", "", "JS content file")
	createCmd.Flags().StringVar(&author, "author", "", "author identity")
	createCmd.MarkFlagRequired("author")

	var templatesCmd = &cobra.Command{
		Use:   "templates",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			templates, err := s.svc.List()
			if err != nil {
				return err
			}
			for _, t := range templates {
				fmt.Printf("%s  %s\n", t.ID, t.Name)
			}
			return nil
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit [template-id]",
		Short: "Record edited content on a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			html, err := readSection(htmlFile)
			if err != nil {
				return err
			}
			css, err := readSection(cssFile)
			if err != nil {
				return err
			}
			js, err := readSection(jsFile)
			if err != nil {
				return err
			}

			c, err := s.svc.Commit(args[0], branchName, author, message, html, css, js)
			if err != nil {
				return fmt.Errorf("committing: %w", err)
			}

			fmt.Printf("[%s %s] %s\n", branchName, utils.ShortHash(c.ID), c.Message)
			return nil
		},
	}
	commitCmd.Flags().StringVar(&htmlFile, "html", "", "HTML content file")
	commitCmd.Flags().StringVar(&cssFile, "css", "", "CSS content file")
	commitCmd.Flags().StringVar(&jsFile, "js", "", "JS content file")
	commitCmd.Flags().StringVar(&author, "author", "", "author identity")
	commitCmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	commitCmd.Flags().StringVar(&branchName, "branch", template.DefaultBranchName, "branch to commit on")
	commitCmd.MarkFlagRequired("author")

	var logBranch string
	var logCmd = &cobra.Command{
		Use:   "log [template-id]",
		Short: "Show commit history for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.svc.History(args[0], logBranch, 0)
			if err != nil {
				return err
			}

			yellow := color.New(color.FgYellow)
			for _, e := range entries {
				yellow.Printf("commit %s", e.Commit.ID)
				if e.Commit.IsMerge() {
					fmt.Print("  (merge)")
				}
				fmt.Println()
				fmt.Printf("Author: %s\n", e.Commit.Author)
				fmt.Printf("Date:   %s\n", e.Commit.CreatedAt.Format("Mon Jan 2 15:04:05 2006"))
				fmt.Printf("\n    %s\n\n", e.Commit.Message)
				for _, ch := range e.Changes {
					fmt.Printf("    %s: +%d -%d\n", ch.Section, ch.Insertions, ch.Deletions)
				}
			}
			return nil
		},
	}
	logCmd.Flags().StringVar(&logBranch, "branch", template.DefaultBranchName, "branch to log")

	var diffCmd = &cobra.Command{
		Use:   "diff [template-id] [from-commit] [to-commit]",
		Short: "Show the structural diff between two commits",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			diffs, err := s.svc.DiffCommits(args[0], args[1], args[2])
			if err != nil {
				return err
			}

			fmt.Print(diff.FormatAll(diffs, true))
			return nil
		},
	}

	var fromBranch string
	var branchCmd = &cobra.Command{
		Use:   "branch [template-id] [name]",
		Short: "Create a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			b, err := s.svc.CreateBranch(args[0], args[1], fromBranch, "", author, "")
			if err != nil {
				return fmt.Errorf("creating branch: %w", err)
			}

			fmt.Printf("Branch %s created at %s\n", b.Name, utils.ShortHash(b.HeadCommitID))
			return nil
		},
	}
	branchCmd.Flags().StringVar(&fromBranch, "from", "", "branch to fork from (default: the default branch)")
	branchCmd.Flags().StringVar(&author, "author", "", "author identity")

	var branchesCmd = &cobra.Command{
		Use:   "branches [template-id]",
		Short: "List branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			branches, err := s.svc.ListBranches(args[0])
			if err != nil {
				return err
			}
			for _, b := range branches {
				marker := " "
				if b.IsDefault {
					marker = "*"
				}
				fmt.Printf("%s %s -> %s\n", marker, b.Name, utils.ShortHash(b.HeadCommitID))
			}
			return nil
		},
	}

	var deleteBranchCmd = &cobra.Command{
		Use:   "delete-branch [template-id] [name]",
		Short: "Delete a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.DeleteBranch(args[0], args[1]); err != nil {
				return fmt.Errorf("deleting branch: %w", err)
			}
			fmt.Printf("Deleted branch %s\n", args[1])
			return nil
		},
	}

	var preview bool
	var mergeCmd = &cobra.Command{
		Use:   "merge [template-id] [source] [target]",
		Short: "Merge one branch into another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			var result *merge.Result
			if preview {
				result, err = s.svc.PreviewMerge(args[0], args[1], args[2])
			} else {
				result, err = s.svc.Merge(args[0], args[1], args[2], author, message)
			}
			if err != nil {
				return fmt.Errorf("merging: %w", err)
			}

			switch result.Status {
			case merge.StatusClean:
				if result.FastForward {
					fmt.Printf("Fast-forwarded %s to %s\n", args[2], utils.ShortHash(result.Commit.ID))
				} else if result.Commit != nil {
					fmt.Printf("Merged %s into %s: %s\n", args[1], args[2], utils.ShortHash(result.Commit.ID))
				} else {
					fmt.Println("Merge is clean")
				}
			case merge.StatusConflicted:
				red := color.New(color.FgRed, color.Bold)
				red.Printf("Merge has %d conflict(s)\n\n", len(result.Conflicts))
				for _, c := range result.Conflicts {
					fmt.Printf("-- %s section, base tokens %d..%d --\n",
						c.Section, c.BasePos, c.BasePos+c.BaseCount)
					fmt.Print(merge.RenderConflict(c))
					fmt.Println()
				}
			}
			return nil
		},
	}
	mergeCmd.Flags().StringVar(&author, "author", "", "author identity")
	mergeCmd.Flags().StringVarP(&message, "message", "m", "", "merge commit message")
	mergeCmd.Flags().BoolVar(&preview, "preview", false, "report conflicts without merging")

	var rollbackCmd = &cobra.Command{
		Use:   "rollback [template-id] [commit-id]",
		Short: "Commit an older version's content back onto a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := s.svc.Rollback(args[0], branchName, args[1], author)
			if err != nil {
				return fmt.Errorf("rolling back: %w", err)
			}

			fmt.Printf("[%s %s] %s\n", branchName, utils.ShortHash(c.ID), c.Message)
			return nil
		},
	}
	rollbackCmd.Flags().StringVar(&branchName, "branch", template.DefaultBranchName, "branch to roll back")
	rollbackCmd.Flags().StringVar(&author, "author", "", "author identity")
	rollbackCmd.MarkFlagRequired("author")

	rootCmd.AddCommand(createCmd, templatesCmd, commitCmd, logCmd, diffCmd,
		branchCmd, branchesCmd, deleteBranchCmd, mergeCmd, rollbackCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
