// Package ast provides a front-end neutral view of a parsed C/C++
// translation unit.
//
// A Frontend turns a prepared compiler invocation into a tree of Cursors.
// Two implementations exist: clang (semantic, driven through clang's JSON AST
// dump) and treesitter (syntactic, no toolchain needed). Consumers such as
// the symbol visitor only see Cursors, so they work with either.
//
// Usage:
//
//	fe := clang.New(clang.WithBinary("clang-18"))
//	session, err := fe.NewSession()
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	tu, err := session.Parse(ctx, inv)
//	if err != nil {
//	    return err
//	}
//	for _, c := range tu.Root.Children {
//	    fmt.Printf("%s %s:%d\n", c.Kind, c.Location.File, c.Location.Line)
//	}
package ast
